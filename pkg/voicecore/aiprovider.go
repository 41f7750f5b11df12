package voicecore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	openairt "github.com/WqyJh/go-openai-realtime/v2"
	"github.com/realtime-ai/realtime-ai/pkg/audio"
	"github.com/realtime-ai/realtime-ai/pkg/realtimeapi/events"
	"github.com/realtime-ai/realtime-ai/pkg/realtimeapi/state"
)

// ProviderEventType enumerates the events an AIProvider raises toward its
// owning VoiceSession.
type ProviderEventType int

const (
	ProviderEventAudioDelta ProviderEventType = iota
	ProviderEventTranscriptDelta
	ProviderEventTranscriptFinal
	ProviderEventUserTranscript
	ProviderEventResponseStarted
	ProviderEventResponseDone
	ProviderEventResponseCancelled
	ProviderEventInputCommitted
	ProviderEventError
)

// ProviderEvent carries one upstream signal plus its payload.
type ProviderEvent struct {
	Type       ProviderEventType
	ResponseID string
	ItemID     string
	Text       string
	Audio      []byte
	Code       string
	Message    string
	Recoverable bool
}

// AIProvider is the boundary between a VoiceSession and its upstream model
// connection. A session owns exactly one provider for its lifetime.
type AIProvider interface {
	Connect(ctx context.Context) error
	SendAudioAppend(ctx context.Context, pcm16 []byte, sampleRateHz int) error
	SendAudioCommit(ctx context.Context) error
	SendAudioClear(ctx context.Context) error
	CreateResponse(ctx context.Context) error
	CancelResponse(ctx context.Context, responseID string) error
	TruncateItem(ctx context.Context, itemID string, contentIndex int, audioEndMs int) error
	Events() <-chan ProviderEvent
	Close() error
}

// RealtimeProvider implements AIProvider against an OpenAI-Realtime-API-
// compatible WebSocket endpoint.
type RealtimeProvider struct {
	cfg *Config

	client *openairt.Client
	conn   *openairt.Conn

	tracker *state.ResponseTracker

	events chan ProviderEvent

	mu          sync.Mutex
	hasActive   bool
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup

	resampleMu   sync.Mutex
	resample     *audio.Resample
	resampleRate int

	outputMu    sync.Mutex
	outputCarry []byte
}

// NewRealtimeProvider constructs a provider bound to apiKey. The connection
// is established lazily in Connect.
func NewRealtimeProvider(cfg *Config, apiKey string) *RealtimeProvider {
	return &RealtimeProvider{
		cfg:     cfg,
		client:  openairt.NewClient(apiKey),
		tracker: state.NewResponseTracker(),
		events:  make(chan ProviderEvent, 64),
	}
}

func (p *RealtimeProvider) Events() <-chan ProviderEvent {
	return p.events
}

func (p *RealtimeProvider) emit(evt ProviderEvent) {
	select {
	case p.events <- evt:
	default:
		log.Printf("voicecore: provider event channel full, dropping %v", evt.Type)
	}
}

// Connect opens the upstream WebSocket and sends the initial session.update
// with this provider's configured modalities, voice, and turn_detection.
func (p *RealtimeProvider) Connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.ProviderConnectTimeoutMs)*time.Millisecond)
	defer cancel()

	conn, err := p.client.Connect(connectCtx, openairt.WithModel(p.cfg.ProviderModel))
	if err != nil {
		return fmt.Errorf("voicecore: provider connect: %w", err)
	}
	p.conn = conn

	runCtx, runCancel := context.WithCancel(context.Background())
	p.cancelFunc = runCancel

	handler := openairt.NewConnHandler(runCtx, conn, p.onLogEvent, p.onResponseEvent, p.onTextDeltaEvent, p.onAudioEvent)
	handler.Start()

	update := p.buildSessionUpdate()
	if err := conn.SendMessage(ctx, update); err != nil {
		return fmt.Errorf("voicecore: provider session.update: %w", err)
	}

	return nil
}

func (p *RealtimeProvider) buildSessionUpdate() openairt.SessionUpdateEvent {
	turnDetection := &openairt.TurnDetectionUnion{
		ServerVad: &openairt.ServerVad{
			Threshold:         0.8,
			SilenceDurationMs: 200,
		},
	}
	if !p.cfg.ProviderUseServerVAD {
		turnDetection = nil
	}

	return openairt.SessionUpdateEvent{
		Session: openairt.SessionUnion{
			Realtime: &openairt.RealtimeSession{
				Model:            p.cfg.ProviderModel,
				OutputModalities: []openairt.Modality{openairt.ModalityAudio},
				Audio: &openairt.RealtimeSessionAudio{
					Input: &openairt.SessionAudioInput{
						Format: &openairt.AudioFormatUnion{
							PCM: &openairt.AudioFormatPCM{Rate: p.cfg.ProviderSampleRateHz},
						},
						TurnDetection: turnDetection,
					},
					Output: &openairt.SessionAudioOutput{
						Format: &openairt.AudioFormatUnion{
							PCM: &openairt.AudioFormatPCM{Rate: p.cfg.ProviderSampleRateHz},
						},
						Voice: providerVoice(p.cfg.ProviderVoice),
					},
				},
			},
		},
	}
}

func (p *RealtimeProvider) onLogEvent(ctx context.Context, event openairt.ServerEvent) {
	if event.ServerEventType() != openairt.ServerEventTypeError {
		return
	}
	data, err := json.Marshal(event)
	msg := string(data)
	if err != nil {
		msg = "upstream error"
	}
	p.emit(ProviderEvent{Type: ProviderEventError, Code: CodeUpstreamError, Message: msg, Recoverable: isRecoverableProviderError(CodeUpstreamError)})
}

func (p *RealtimeProvider) onResponseEvent(ctx context.Context, event openairt.ServerEvent) {
	switch event.ServerEventType() {
	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		msg := event.(openairt.ConversationItemInputAudioTranscriptionCompletedEvent)
		p.emit(ProviderEvent{Type: ProviderEventUserTranscript, ItemID: msg.ItemID, Text: msg.Transcript})

	case openairt.ServerEventTypeResponseCreated:
		p.mu.Lock()
		p.hasActive = true
		p.mu.Unlock()
		responseID, _, _ := p.tracker.StartResponseWithContentType(events.ContentTypeAudio)
		p.emit(ProviderEvent{Type: ProviderEventResponseStarted, ResponseID: responseID})

	case openairt.ServerEventTypeResponseDone:
		p.mu.Lock()
		p.hasActive = false
		p.mu.Unlock()
		p.flushOutputCarry()
		ctxResp, err := p.tracker.CompleteResponse(events.ResponseStatusCompleted)
		if err == nil {
			p.emit(ProviderEvent{Type: ProviderEventResponseDone, ResponseID: ctxResp.ResponseID})
		}

	case openairt.ServerEventTypeInputAudioBufferCommitted:
		p.emit(ProviderEvent{Type: ProviderEventInputCommitted})
	}
}

func (p *RealtimeProvider) onTextDeltaEvent(ctx context.Context, event openairt.ServerEvent) {
	switch event.ServerEventType() {
	case openairt.ServerEventTypeResponseOutputAudioTranscriptDelta:
		rsp := event.(openairt.ResponseOutputAudioTranscriptDeltaEvent)
		p.tracker.AddTextData(rsp.Delta)
		p.emit(ProviderEvent{Type: ProviderEventTranscriptDelta, Text: rsp.Delta})

	case openairt.ServerEventTypeResponseOutputAudioTranscriptDone:
		rsp := event.(openairt.ResponseOutputAudioTranscriptDoneEvent)
		p.emit(ProviderEvent{Type: ProviderEventTranscriptFinal, Text: rsp.Transcript})
	}
}

func (p *RealtimeProvider) onAudioEvent(ctx context.Context, event openairt.ServerEvent) {
	switch event.ServerEventType() {
	case openairt.ServerEventTypeResponseOutputAudioDelta:
		msg := event.(openairt.ResponseOutputAudioDeltaEvent)
		data, err := base64.StdEncoding.DecodeString(msg.Delta)
		if err != nil {
			log.Printf("voicecore: provider audio delta decode: %v", err)
			return
		}
		p.tracker.AddAudioData(data)
		p.emitChunkedAudio(data)

	case openairt.ServerEventTypeResponseOutputAudioDone:
		p.flushOutputCarry()
	}
}

// outputChunkBytes is the byte length of one fixed-duration PCM16 mono
// output chunk at the provider's sample rate, per §4.4.
func (p *RealtimeProvider) outputChunkBytes() int {
	ms := p.cfg.OutputChunkMs
	if ms <= 0 {
		ms = 1
	}
	n := ms * p.cfg.ProviderSampleRateHz * 2 / 1000
	if n%2 != 0 {
		n++
	}
	if n <= 0 {
		n = 2
	}
	return n
}

// emitChunkedAudio re-chunks a provider audio delta into fixed OutputChunkMs
// frames, carrying any remainder across calls (§9 "Mixed PCM carry across
// chunks") so emitted chunk duration stays constant regardless of how the
// provider splits its deltas.
func (p *RealtimeProvider) emitChunkedAudio(data []byte) {
	chunkBytes := p.outputChunkBytes()

	p.outputMu.Lock()
	defer p.outputMu.Unlock()

	p.outputCarry = append(p.outputCarry, data...)
	for len(p.outputCarry) >= chunkBytes {
		chunk := make([]byte, chunkBytes)
		copy(chunk, p.outputCarry[:chunkBytes])
		p.outputCarry = p.outputCarry[chunkBytes:]
		p.emit(ProviderEvent{Type: ProviderEventAudioDelta, Audio: chunk})
	}
}

// flushOutputCarry emits any residual partial chunk left once a response
// stops producing audio, so the trailing fractional frame isn't dropped.
func (p *RealtimeProvider) flushOutputCarry() {
	p.outputMu.Lock()
	carry := p.outputCarry
	p.outputCarry = nil
	p.outputMu.Unlock()

	if len(carry) == 0 {
		return
	}
	p.emit(ProviderEvent{Type: ProviderEventAudioDelta, Audio: carry})
}

// discardOutputCarry drops any buffered partial chunk without emitting it,
// used on cancel/interrupt so stale audio from an aborted response never
// bleeds into the next one.
func (p *RealtimeProvider) discardOutputCarry() {
	p.outputMu.Lock()
	p.outputCarry = nil
	p.outputMu.Unlock()
}

// SendAudioAppend resamples pcm16 from sampleRateHz to the provider's
// configured input rate (if they differ) before forwarding it upstream,
// reusing this codebase's FFmpeg-backed software resample context instead
// of a hand-rolled one (§9's "Mixed PCM carry across chunks" note: the
// resampler is kept alive across calls so partial-sample carry is handled
// internally rather than at this call site).
func (p *RealtimeProvider) SendAudioAppend(ctx context.Context, pcm16 []byte, sampleRateHz int) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	out, err := p.resampleToProviderRate(pcm16, sampleRateHz)
	if err != nil {
		return fmt.Errorf("voicecore: resample input audio: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(out)
	return p.conn.SendMessage(ctx, openairt.InputAudioBufferAppendEvent{Audio: encoded})
}

func (p *RealtimeProvider) resampleToProviderRate(pcm16 []byte, sampleRateHz int) ([]byte, error) {
	if sampleRateHz <= 0 || sampleRateHz == p.cfg.ProviderSampleRateHz {
		return pcm16, nil
	}

	p.resampleMu.Lock()
	defer p.resampleMu.Unlock()

	if p.resample == nil || p.resampleRate != sampleRateHz {
		if p.resample != nil {
			p.resample.Free()
		}
		r, err := audio.NewResample(sampleRateHz, p.cfg.ProviderSampleRateHz, astiav.ChannelLayoutMono, astiav.ChannelLayoutMono)
		if err != nil {
			return nil, err
		}
		p.resample = r
		p.resampleRate = sampleRateHz
	}
	return p.resample.Resample(pcm16)
}

func (p *RealtimeProvider) SendAudioCommit(ctx context.Context) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	return p.conn.SendMessage(ctx, openairt.InputAudioBufferCommitEvent{})
}

func (p *RealtimeProvider) SendAudioClear(ctx context.Context) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	return p.conn.SendMessage(ctx, openairt.InputAudioBufferClearEvent{})
}

// CreateResponse requests a new assistant turn. Per §4.4's invariant, the
// caller must not issue this while a response is already active; the
// provider rejects such a call locally rather than round-tripping to learn
// the error from the server.
func (p *RealtimeProvider) CreateResponse(ctx context.Context) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	p.mu.Lock()
	active := p.hasActive
	p.mu.Unlock()
	if active {
		return ErrResponseInProgress
	}
	return p.conn.SendMessage(ctx, openairt.ResponseCreateEvent{})
}

func (p *RealtimeProvider) CancelResponse(ctx context.Context, responseID string) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	p.mu.Lock()
	p.hasActive = false
	p.mu.Unlock()
	p.tracker.CancelResponse()
	p.discardOutputCarry()
	return p.conn.SendMessage(ctx, openairt.ResponseCancelEvent{ResponseID: responseID})
}

func (p *RealtimeProvider) TruncateItem(ctx context.Context, itemID string, contentIndex int, audioEndMs int) error {
	if p.conn == nil {
		return ErrNotStarted
	}
	return p.conn.SendMessage(ctx, openairt.ConversationItemTruncateEvent{
		ItemID:       itemID,
		ContentIndex: contentIndex,
		AudioEndMs:   audioEndMs,
	})
}

// providerVoice maps a configured voice name to the provider's typed voice
// constant, defaulting to Shimmer for anything unrecognized.
func providerVoice(name string) openairt.Voice {
	switch name {
	case "alloy":
		return openairt.VoiceAlloy
	case "echo":
		return openairt.VoiceEcho
	case "shimmer":
		return openairt.VoiceShimmer
	default:
		return openairt.VoiceShimmer
	}
}

func (p *RealtimeProvider) Close() error {
	if p.cancelFunc != nil {
		p.cancelFunc()
		p.wg.Wait()
		p.cancelFunc = nil
	}
	p.tracker.Reset()
	p.discardOutputCarry()

	p.resampleMu.Lock()
	if p.resample != nil {
		p.resample.Free()
		p.resample = nil
	}
	p.resampleMu.Unlock()

	return nil
}
