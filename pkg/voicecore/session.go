package voicecore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/realtime-ai/realtime-ai/pkg/pipeline"
	"github.com/realtime-ai/realtime-ai/pkg/trace"
)

// SessionState is one node of the session FSM described in §3.
type SessionState int

const (
	StateNew SessionState = iota
	StateReady
	StateListening
	StateThinking
	StateSpeaking
	StateInterrupted
	StateError
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateInterrupted:
		return "interrupted"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// allowedTransitions is the single source of truth for the FSM; every
// state change is checked against it before being applied.
var allowedTransitions = map[SessionState]map[SessionState]bool{
	StateNew:         {StateReady: true, StateStopped: true, StateError: true},
	StateReady:       {StateListening: true, StateStopped: true, StateError: true},
	StateListening:   {StateThinking: true, StateReady: true, StateStopped: true, StateError: true},
	StateThinking:    {StateSpeaking: true, StateReady: true, StateInterrupted: true, StateStopped: true, StateError: true},
	StateSpeaking:    {StateReady: true, StateInterrupted: true, StateStopped: true, StateError: true},
	StateInterrupted: {StateReady: true, StateStopped: true, StateError: true},
	StateError:       {StateStopped: true},
	StateStopped:     {},
}

func isAllowedTransition(from, to SessionState) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TurnMetrics records the five checkpoint timestamps for one user turn.
type TurnMetrics struct {
	TurnID           string
	InputStartedAtMs int64
	CommitAtMs       int64
	SttPartialMs     int64
	SttFinalMs       int64
	FirstAudioMs     int64
}

// historyEntry is one record in a rolling window used for echo suppression
// (RecentBotOutputs) or inbound de-duplication (InboundHistory).
type historyEntry struct {
	text       string
	normalized string
	tokens     map[string]bool
	at         time.Time
}

// rollingWindow is a bounded, time-expiring history of normalized text,
// shared by the bot-output and inbound-history tracks.
type rollingWindow struct {
	mu      sync.Mutex
	entries []historyEntry
	ttl     time.Duration
}

func newRollingWindow(ttl time.Duration) *rollingWindow {
	return &rollingWindow{ttl: ttl}
}

func (w *rollingWindow) add(text string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	w.entries = append(w.entries, historyEntry{
		text:       text,
		normalized: normalizeLoose(text),
		tokens:     tokenSet(text),
		at:         now,
	})
}

func (w *rollingWindow) containsSimilar(text string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	norm := normalizeLoose(text)
	for _, e := range w.entries {
		if e.normalized == norm {
			return true
		}
	}
	return false
}

func (w *rollingWindow) evictLocked(now time.Time) {
	cutoff := 0
	for i, e := range w.entries {
		if now.Sub(e.at) <= w.ttl {
			break
		}
		cutoff = i + 1
	}
	w.entries = w.entries[cutoff:]
}

func normalizeLoose(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalizeLoose(text)) {
		set[w] = true
	}
	return set
}

// VoiceSession owns one pipeline, one turn manager, and one provider for
// the lifetime of a call. All mutation happens on its own operation chain
// goroutine; see runLoop.
type VoiceSession struct {
	id        string
	transport Transport

	cfg *Config

	pipeline *AudioPipeline
	turn     *TurnManager
	provider AIProvider

	state SessionState

	started bool
	stopped bool

	hasSpeechSinceCommit bool
	userAudioMsSinceCommit int
	lastSTTFinalChars    int

	currentTurnID     string
	currentItemID     string
	currentResponseID string

	playedMsAtInterrupt int

	// pendingResponseCreate records a response.create that was coalesced
	// because one was already active or the interrupt window was open; it
	// is dispatched on the next response.done.
	pendingResponseCreate bool

	recentBotOutputs *rollingWindow
	inboundHistory   *rollingWindow

	metrics []TurnMetrics

	ops    chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nextOutSeq uint32

	interruptInFlightUntil time.Time

	idleMu    sync.Mutex
	idleTimer *time.Timer
	idleGen   int
}

// idleTimeout is the §5 no-inbound-audio watchdog duration: a session with
// no inbound audio for longer than this closes itself with
// error{code=idle_timeout}.
const idleTimeout = 30 * time.Second

// NewVoiceSession constructs a session bound to transport and provider,
// neither of which is started until Start is called.
func NewVoiceSession(id string, transport Transport, provider AIProvider, cfg *Config) *VoiceSession {
	semantic := NewSemanticEoT(cfg, "")
	localVAD := !cfg.ProviderUseServerVAD

	s := &VoiceSession{
		id:               id,
		transport:        transport,
		cfg:              cfg,
		pipeline:         NewAudioPipeline(256),
		turn:             NewTurnManager(cfg, localVAD, semantic),
		provider:         provider,
		state:            StateNew,
		recentBotOutputs: newRollingWindow(12 * time.Second),
		inboundHistory:   newRollingWindow(12 * time.Second),
		ops:              make(chan func(), 64),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session's identifier.
func (s *VoiceSession) ID() string { return s.id }

// State returns the session's current FSM state.
func (s *VoiceSession) State() SessionState { return s.state }

// Start opens the provider connection and transitions the session to
// ready. It must be called exactly once.
func (s *VoiceSession) Start(ctx context.Context, env Envelope) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.wg.Add(1)
	go s.runLoop()
	s.wg.Add(1)
	go s.pumpProviderEvents()
	s.wg.Add(1)
	go s.pumpTurnEvents()

	if err := s.provider.Connect(ctx); err != nil {
		return fmt.Errorf("voicecore: session %s start: %w", s.id, err)
	}

	_, pipelineSpan := trace.InstrumentPipelineStart(s.ctx, s.id)
	pipelineSpan.End()

	return s.submit(func() {
		s.transitionTo(StateReady)
		s.sendControl(TypeSessionStarted, map[string]string{"session_id": s.id}, env.MsgID)
		s.sendSessionState()
		s.armIdleTimer()
	})
}

// armIdleTimer (re)starts the §5 idle watchdog: no inbound audio for
// idleTimeout closes the session with error{code=idle_timeout}. Called on
// Start and on every inbound audio frame. Uses the same generation-counter
// pattern as TurnManager's EoT timer so a stale firing after a rearm is a
// no-op.
func (s *VoiceSession) armIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()

	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleGen++
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(idleTimeout, func() {
		s.idleMu.Lock()
		if gen != s.idleGen {
			s.idleMu.Unlock()
			return
		}
		s.idleMu.Unlock()
		select {
		case s.ops <- func() { s.handleIdleTimeout() }:
		case <-s.ctx.Done():
		}
	})
}

// cancelIdleTimer stops the idle watchdog without rearming it.
func (s *VoiceSession) cancelIdleTimer() {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleGen++
}

// handleIdleTimeout runs on the operation chain when the idle watchdog
// fires; it mirrors the non-recoverable provider-error shutdown path in
// handleProviderEvent.
func (s *VoiceSession) handleIdleTimeout() {
	if s.stopped || s.state == StateStopped || s.state == StateError {
		return
	}
	s.sendError(CodeIdleTimeout, "no inbound audio for 30s", true)
	s.pipeline.clearOutputFrames()
	s.transitionTo(StateError)
	s.sendSessionState()
	go s.Stop("idle_timeout")
}

// OnControl dispatches one inbound control envelope. Handling failures are
// reported as warning/error envelopes; the returned error is non-nil only
// when the session has already stopped (ErrAlreadyStopped).
func (s *VoiceSession) OnControl(env Envelope) error {
	return s.submit(func() {
		s.handleControl(env)
	})
}

// OnAudio appends an inbound PCM16 frame to the pipeline, notifies the
// turn manager, and forwards it to the provider.
func (s *VoiceSession) OnAudio(frame AudioFrame) error {
	return s.submit(func() {
		s.handleAudio(frame)
	})
}

// OnBinaryAudio decodes a binary wire frame and delegates to OnAudio.
func (s *VoiceSession) OnBinaryAudio(raw []byte) error {
	frame, err := decodeAudioFrame(raw)
	if err != nil {
		return s.submit(func() {
			s.sendWarning(CodeBadShape, err.Error())
		})
	}
	return s.OnAudio(frame)
}

// Stop tears down pipeline, turn manager, and provider and transitions the
// session to stopped. It is idempotent.
func (s *VoiceSession) Stop(reason string) error {
	err := s.submit(func() {
		if s.stopped {
			return
		}
		s.stopped = true
		s.cancelIdleTimer()
		_, pipelineSpan := trace.InstrumentPipelineStop(s.ctx, s.id)
		pipelineSpan.End()
		s.turn.Reset()
		s.pipeline.resetAll()
		s.provider.Close()
		s.transitionTo(StateStopped)
		s.sendSessionState()
		s.transport.Close()
	})
	s.cancel()
	s.wg.Wait()
	if errors.Is(err, ErrAlreadyStopped) {
		return nil
	}
	return err
}

// submit enqueues fn on the operation chain and blocks until it has run,
// matching this codebase's single-writer-per-session convention.
func (s *VoiceSession) submit(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.ctx.Done():
		return ErrAlreadyStopped
	}
	select {
	case <-done:
		return nil
	case <-s.ctx.Done():
		return ErrAlreadyStopped
	}
}

func (s *VoiceSession) runLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.ops:
			op()
		}
	}
}

func (s *VoiceSession) pumpProviderEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt, ok := <-s.provider.Events():
			if !ok {
				return
			}
			e := evt
			select {
			case s.ops <- func() { s.handleProviderEvent(e) }:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *VoiceSession) pumpTurnEvents() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt, ok := <-s.turn.Events():
			if !ok {
				return
			}
			e := evt
			select {
			case s.ops <- func() { s.handleTurnEvent(e) }:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// transitionTo applies a validated state change, rejecting and warning on
// anything not present in allowedTransitions.
func (s *VoiceSession) transitionTo(next SessionState) bool {
	if s.state == next {
		return true
	}
	if !isAllowedTransition(s.state, next) {
		s.sendWarning(CodeCommitBlockedState, fmt.Sprintf("invalid transition %s -> %s", s.state, next))
		return false
	}
	s.state = next
	return true
}

func (s *VoiceSession) sendSessionState() {
	s.sendControl(TypeSessionState, map[string]string{"state": s.state.String()}, "")
}

func (s *VoiceSession) sendControl(typ EnvelopeType, payload interface{}, replyTo string) {
	env := buildEnvelope(typ, payload, s.id, replyTo, time.Now().UnixMilli())
	if err := s.transport.SendControl(env); err != nil {
		log.Printf("voicecore: session %s send control: %v", s.id, err)
	}
}

func (s *VoiceSession) sendWarning(code, message string) {
	s.sendControl(TypeWarning, map[string]string{"code": code, "message": message}, "")
}

func (s *VoiceSession) sendError(code, message string, fatal bool) {
	s.sendControl(TypeError, map[string]interface{}{"code": code, "message": message, "fatal": fatal}, "")
}

func (s *VoiceSession) emitMetricsTick(checkpoint string) {
	s.sendControl(TypeMetricsTick, map[string]interface{}{
		"turn_id":    s.currentTurnID,
		"checkpoint": checkpoint,
		"ts_ms":      time.Now().UnixMilli(),
	}, "")
}

// handleControl dispatches by envelope type, per §3/§9's tagged-variant
// dispatch note.
func (s *VoiceSession) handleControl(env Envelope) {
	switch env.Type {
	case TypeSessionUpdate:
		s.handleSessionUpdate(env)
	case TypeAudioCommit:
		s.handleCommitRequest(env, "client_commit")
	case TypeTextInput:
		s.handleTextInput(env)
	case TypeAssistantInterrupt:
		s.handleAssistantInterrupt(env)
	case TypeSessionStop:
		go s.Stop("client_requested")
	case TypePing:
		s.sendControl(TypePong, nil, env.MsgID)
	default:
		s.sendError(CodeUnsupportedType, fmt.Sprintf("unsupported control type %q", env.Type), false)
	}
}

func (s *VoiceSession) handleSessionUpdate(env Envelope) {
	var override Config
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &override); err != nil {
			s.sendWarning(CodeBadShape, err.Error())
			return
		}
	}
	s.cfg = s.cfg.Merge(&override)
}

func (s *VoiceSession) handleAudio(frame AudioFrame) {
	if s.state == StateStopped || s.state == StateError {
		s.sendWarning(CodeCommitBlockedState, "session not accepting audio")
		return
	}

	s.armIdleTimer()

	if err := s.pipeline.appendInputFrame(frame); err != nil {
		s.sendWarning(CodeBufferOverflow, err.Error())
		return
	}

	ms, _ := s.pipeline.bufferedState()
	if ms > 30_000 {
		target := ms / 2
		for ms > target {
			s.pipeline.dropOldestInputFrame()
			ms, _ = s.pipeline.bufferedState()
		}
		s.sendWarning(CodeBufferOverflow, "input buffer exceeded 30s, dropped oldest frames until halved")
	}

	// Only non-silent frames count as user audio for the empty-turn gate.
	if computeRMS(frame.Bytes) > 0 {
		s.hasSpeechSinceCommit = true
		s.userAudioMsSinceCommit += int(frame.DurationMs)
	}

	s.turn.OnInputFrame(frame)

	if s.provider != nil {
		if err := s.provider.SendAudioAppend(s.ctx, frame.Bytes, int(frame.SampleRateHz)); err != nil {
			log.Printf("voicecore: session %s provider append: %v", s.id, err)
		}
	}

	if s.state == StateReady || s.state == StateInterrupted {
		s.transitionTo(StateListening)
		s.sendSessionState()
	}
}

func (s *VoiceSession) handleTextInput(env Envelope) {
	var payload struct {
		Text           string `json:"text"`
		CreateResponse bool   `json:"create_response"`
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendWarning(CodeBadShape, err.Error())
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		s.sendWarning(CodeEmptyText, "text.input payload is empty")
		return
	}
	s.lastSTTFinalChars = len(payload.Text)
	s.hasSpeechSinceCommit = true
}

func (s *VoiceSession) handleAssistantInterrupt(env Envelope) {
	var payload struct {
		PlayedMs int `json:"played_ms"`
	}
	_ = json.Unmarshal(env.Payload, &payload)
	s.playedMsAtInterrupt = payload.PlayedMs
	s.handleBargeIn("client_interrupt")
}

// handleCommitRequest applies the empty-turn gate and, if it passes, runs
// the commit flow through to the provider.
func (s *VoiceSession) handleCommitRequest(env Envelope, reason string) {
	_, span := trace.StartSpan(s.ctx, "voicecore.commit_turn", oteltrace.WithAttributes(
		attribute.String("session_id", s.id),
		attribute.String("reason", reason),
	))
	defer span.End()

	if s.state != StateReady && s.state != StateListening {
		s.sendWarning(CodeCommitBlockedState, fmt.Sprintf("commit rejected in state %s", s.state))
		return
	}

	gateOK := s.hasSpeechSinceCommit ||
		s.userAudioMsSinceCommit >= s.cfg.MinUserAudioMs ||
		s.lastSTTFinalChars >= s.cfg.MinTranscriptChars

	if !gateOK {
		s.pipeline.resetAll()
		if s.provider != nil {
			if err := s.provider.SendAudioClear(s.ctx); err != nil {
				log.Printf("voicecore: session %s clear provider buffer: %v", s.id, err)
			}
		}
		s.sendWarning(CodeEmptyTurnSkipped, "commit skipped, empty-turn gate not satisfied")
		s.transitionTo(StateListening)
		return
	}

	s.currentTurnID = "turn_" + uuid.New().String()[:12]
	nowMs := time.Now().UnixMilli()

	snap, err := s.pipeline.consumeCommitSnapshot(CommitRequest{
		CommitID: "commit_" + uuid.New().String()[:12],
		Reason:   reason,
		MinMs:    s.cfg.MinCommitMs,
		MinBytes: s.cfg.MinCommitBytes,
	}, nowMs)
	if err != nil {
		s.sendWarning(codeForPipelineError(err), err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("turn_id", s.currentTurnID),
		attribute.Int("buffered_ms", snap.BufferedMs),
	)

	s.metrics = append(s.metrics, TurnMetrics{TurnID: s.currentTurnID, CommitAtMs: nowMs})
	s.emitMetricsTick("commit")

	s.turn.OnTurnCommitted()

	if !s.transitionTo(StateThinking) {
		s.pipeline.dropPendingCommits("state changed before commit could apply")
		return
	}
	s.sendSessionState()

	s.sendControl(TypeAudioCommitted, map[string]interface{}{
		"commit_id":      snap.CommitID,
		"buffered_ms":    snap.BufferedMs,
		"buffered_bytes": snap.BufferedBytes,
	}, env.MsgID)

	if err := s.provider.SendAudioCommit(s.ctx); err != nil {
		s.sendError(CodeUpstreamError, err.Error(), false)
		return
	}
	s.requestResponseCreate()

	s.hasSpeechSinceCommit = false
	s.userAudioMsSinceCommit = 0
	s.lastSTTFinalChars = 0
}

// requestResponseCreate dispatches a response.create unless one is already
// in flight or the post-interrupt window is still open, in which case the
// request is coalesced and retried on the next response.done (§4.4).
func (s *VoiceSession) requestResponseCreate() {
	if time.Now().Before(s.interruptInFlightUntil) {
		s.pendingResponseCreate = true
		return
	}
	err := s.provider.CreateResponse(s.ctx)
	if err == nil {
		return
	}
	if errors.Is(err, ErrResponseInProgress) {
		s.pendingResponseCreate = true
		return
	}
	s.sendWarning(CodeActiveResponseError, err.Error())
}

func codeForPipelineError(err error) string {
	switch err {
	case ErrEmptyBuffer:
		return CodeEmptyBuffer
	case ErrBufferTooSmall:
		return CodeBufferTooSmall
	default:
		return CodeInvalidValue
	}
}

// handleTurnEvent reacts to TurnManager signals per §4.5's EoT/barge-in
// handling rules.
func (s *VoiceSession) handleTurnEvent(evt TurnEvent) {
	switch evt.Type {
	case TurnEventEoT:
		if s.state == StateReady || s.state == StateListening {
			s.handleCommitRequest(Envelope{}, evt.Reason)
		}
	case TurnEventBargeInConfirmed:
		if s.state == StateSpeaking || s.state == StateThinking {
			s.handleBargeIn("barge_in")
		}
	case TurnEventVADStart, TurnEventVADStop, TurnEventBargeInCancelled:
		// informational only; no session-level action required.
	}
}

// handleBargeIn clears pending output, truncates and cancels the active
// provider response, and transitions to interrupted.
func (s *VoiceSession) handleBargeIn(reason string) {
	cleared := s.pipeline.clearOutputFrames()
	s.sendControl(TypeAudioClear, map[string]int{"cleared_frames": cleared}, "")

	s.transitionTo(StateInterrupted)
	s.sendSessionState()

	s.interruptInFlightUntil = time.Now().Add(1400 * time.Millisecond)

	if s.currentItemID != "" {
		if err := s.provider.TruncateItem(s.ctx, s.currentItemID, 0, s.playedMsAtInterrupt); err != nil {
			log.Printf("voicecore: session %s truncate item: %v", s.id, err)
		}
	}
	if err := s.provider.CancelResponse(s.ctx, s.currentResponseID); err != nil {
		log.Printf("voicecore: session %s cancel response: %v", s.id, err)
	}
	s.turn.OnBargeInEnded()
}

// handleProviderEvent translates one upstream event into outbound control
// messages and FSM transitions, per §4.4's assistant-state mapping.
func (s *VoiceSession) handleProviderEvent(evt ProviderEvent) {
	switch evt.Type {
	case ProviderEventUserTranscript:
		s.currentItemID = evt.ItemID
		s.lastSTTFinalChars = len(evt.Text)
		s.sendControl(TypeSTTFinal, map[string]string{"turn_id": evt.ItemID, "text": evt.Text}, "")
		s.turn.OnSTTFinal(evt.Text)

	case ProviderEventResponseStarted:
		s.currentResponseID = evt.ResponseID
		s.sendControl(TypeAssistantState, map[string]string{"state": "requested", "response_id": evt.ResponseID}, "")
		s.turn.SetAssistantSpeaking(true)
		s.transitionTo(StateSpeaking)
		s.sendSessionState()
		s.sendControl(TypeAssistantState, map[string]string{"state": "speaking", "response_id": evt.ResponseID}, "")

	case ProviderEventTranscriptDelta:
		s.sendControl(TypeAssistantDelta, map[string]string{"text": evt.Text}, "")

	case ProviderEventTranscriptFinal:
		s.sendControl(TypeAssistantFinal, map[string]string{"text": evt.Text}, "")

	case ProviderEventAudioDelta:
		seq := s.nextOutSeq
		s.nextOutSeq++
		frame := AudioFrame{
			Kind:         FrameKindOutput,
			Codec:        CodecPCM16,
			Channels:     1,
			SampleRateHz: uint32(s.cfg.ProviderSampleRateHz),
			Seq:          seq,
			DurationMs:   uint16(expectedDurationMs(len(evt.Audio), s.cfg.ProviderSampleRateHz, 1)),
			Bytes:        evt.Audio,
		}
		_, pushSpan := trace.InstrumentPipelinePush(s.ctx, s.id, &pipeline.PipelineMessage{
			Type:      pipeline.MsgTypeAudio,
			SessionID: s.id,
			AudioData: &pipeline.AudioData{Data: frame.Bytes, SampleRate: int(frame.SampleRateHz), Channels: int(frame.Channels)},
		})
		pushSpan.End()
		s.pipeline.appendOutputFrame(frame)
		if err := s.transport.SendAudio(frame); err != nil {
			log.Printf("voicecore: session %s send audio: %v", s.id, err)
		}
		if len(s.metrics) > 0 && s.metrics[len(s.metrics)-1].FirstAudioMs == 0 {
			s.metrics[len(s.metrics)-1].FirstAudioMs = time.Now().UnixMilli()
			s.emitMetricsTick("first_audio")
		}

	case ProviderEventResponseDone:
		s.turn.SetAssistantSpeaking(false)
		label := "done"
		if s.state == StateInterrupted {
			label = "interrupted"
		}
		s.sendControl(TypeAssistantState, map[string]string{"state": label, "response_id": evt.ResponseID}, "")
		if s.transitionTo(StateReady) {
			s.sendSessionState()
		}
		s.recentBotOutputs.add(evt.Text, time.Now())
		if s.pendingResponseCreate {
			s.pendingResponseCreate = false
			s.requestResponseCreate()
		}

	case ProviderEventResponseCancelled:
		s.turn.SetAssistantSpeaking(false)
		s.sendControl(TypeAssistantState, map[string]string{"state": "interrupted", "response_id": evt.ResponseID}, "")

	case ProviderEventError:
		if evt.Recoverable {
			s.sendWarning(evt.Code, evt.Message)
			return
		}
		s.sendError(evt.Code, evt.Message, true)
		s.pipeline.clearOutputFrames()
		s.sendControl(TypeAudioClear, nil, "")
		s.transitionTo(StateError)
		s.sendSessionState()
		go s.Stop("provider_fatal_error")
	}
}
