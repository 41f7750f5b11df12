package voicecore

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// TurnEvent is posted by TurnManager onto its event channel for the owning
// VoiceSession to drain on its own operation chain; see the "Cyclic
// callbacks" design note — this is the explicit message pipe in place of a
// nested callback.
type TurnEvent struct {
	Type    TurnEventType
	Reason  string
	Confidence float64
	DelayMs int
}

// TurnEventType enumerates the signals TurnManager can raise.
type TurnEventType int

const (
	TurnEventVADStart TurnEventType = iota
	TurnEventVADStop
	TurnEventBargeInConfirmed
	TurnEventBargeInCancelled
	TurnEventEoT
)

// TurnManager implements the RMS-threshold VAD, echo-aware barge-in
// confirmation, and end-of-turn scheduling described in §4.3. One instance
// is owned per VoiceSession and destroyed with it.
type TurnManager struct {
	cfg *Config

	mu sync.Mutex

	localVADEnabled bool

	speechActive   bool
	lastSpeechAt   time.Time
	speechStartAt  time.Time
	speechDuration time.Duration

	assistantSpeaking bool

	pendingBargeIn     bool
	bargeInStartedAt   time.Time
	bargeInSpeechMs    int

	currentTranscript string
	firstUserTurn     bool

	eotTimer     *time.Timer
	eotGen       int
	semanticEoT  *SemanticEoT

	events chan TurnEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTurnManager constructs a TurnManager. localVADEnabled should be false
// when the provider's own turn_detection is active (server_vad or
// semantic_vad), per the open-question resolution in §9.
func NewTurnManager(cfg *Config, localVADEnabled bool, semanticEoT *SemanticEoT) *TurnManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &TurnManager{
		cfg:             cfg,
		localVADEnabled: localVADEnabled,
		semanticEoT:     semanticEoT,
		firstUserTurn:   true,
		events:          make(chan TurnEvent, 32),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Events returns the channel the owning session drains.
func (m *TurnManager) Events() <-chan TurnEvent {
	return m.events
}

func (m *TurnManager) emit(evt TurnEvent) {
	select {
	case m.events <- evt:
	default:
		// session is not draining fast enough; drop rather than block the
		// caller, matching this codebase's non-blocking publish convention.
	}
}

// SetAssistantSpeaking updates the echo-aware VAD threshold input.
func (m *TurnManager) SetAssistantSpeaking(speaking bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assistantSpeaking = speaking
	if !speaking {
		m.pendingBargeIn = false
		m.bargeInSpeechMs = 0
	}
}

// OnInputFrame feeds one PCM16 input frame through the VAD state machine.
func (m *TurnManager) OnInputFrame(f AudioFrame) {
	if !m.localVADEnabled {
		return
	}

	rms := computeRMS(f.Bytes)

	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.cfg.VADThreshold
	if m.assistantSpeaking {
		threshold = math.Max(0.003, m.cfg.VADThreshold*0.55)
	}

	isSpeech := rms >= threshold
	now := time.Now()

	if m.assistantSpeaking {
		m.handleBargeInFrameLocked(isSpeech, int(f.DurationMs), now)
	}

	if isSpeech {
		if !m.speechActive {
			m.speechActive = true
			m.speechStartAt = now
			m.speechDuration = 0
			m.cancelEoTLocked()
			m.emit(TurnEvent{Type: TurnEventVADStart})
		}
		m.lastSpeechAt = now
		m.speechDuration += time.Duration(f.DurationMs) * time.Millisecond
		return
	}

	if m.speechActive {
		silenceFor := now.Sub(m.lastSpeechAt)
		hangover := time.Duration(m.cfg.VADSilenceMs+m.cfg.VADHangoverMs) * time.Millisecond
		if silenceFor >= hangover {
			m.speechActive = false
			m.emit(TurnEvent{Type: TurnEventVADStop})

			speechMs := int(m.speechDuration / time.Millisecond)
			if speechMs >= m.cfg.MinSpeechMsForTurn && !m.assistantSpeaking {
				m.scheduleEoTLocked("vad_silence", 1.0, m.cfg.VADHangoverMs)
			}
		}
	}
}

func (m *TurnManager) handleBargeInFrameLocked(isSpeech bool, durationMs int, now time.Time) {
	if isSpeech {
		if !m.pendingBargeIn {
			m.pendingBargeIn = true
			m.bargeInStartedAt = now
			m.bargeInSpeechMs = 0
		}
		m.bargeInSpeechMs += durationMs
		if m.bargeInSpeechMs >= m.cfg.BargeInMinMs {
			m.pendingBargeIn = false
			m.emit(TurnEvent{Type: TurnEventBargeInConfirmed})
		}
	}
}

// OnBargeInEnded emits TurnEventBargeInCancelled if a barge-in is still
// pending; the session calls it after handling an interrupt. No timer closes
// a barge-in window: a burst that stops short of BargeInMinMs stays pending
// until this call, and SetAssistantSpeaking(false) clears it without an event.
func (m *TurnManager) OnBargeInEnded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingBargeIn {
		m.pendingBargeIn = false
		m.emit(TurnEvent{Type: TurnEventBargeInCancelled})
	}
}

// OnSTTFinal feeds a finalized transcript through SemanticEoT and
// (re)arms the end-of-turn timer with its recommended delay.
func (m *TurnManager) OnSTTFinal(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentTranscript = text

	if !m.cfg.SemanticEoTEnabled || m.semanticEoT == nil {
		return
	}

	verdict := m.semanticEoT.Classify(m.ctx, text, m.firstUserTurn)
	m.firstUserTurn = false

	if verdict.Status == EoTIncomplete || verdict.Status == EoTUncertain {
		m.scheduleEoTLocked("semantic_"+string(verdict.Status), verdict.Confidence, verdict.RecommendedDelayMs)
		return
	}

	m.scheduleEoTLocked("semantic_complete", verdict.Confidence, verdict.RecommendedDelayMs)
}

// scheduleEoTLocked (re)arms a single timer; firing emits TurnEventEoT. The
// caller must hold m.mu.
func (m *TurnManager) scheduleEoTLocked(reason string, confidence float64, delayMs int) {
	m.cancelEoTLocked()

	m.eotGen++
	gen := m.eotGen
	m.eotTimer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		m.mu.Lock()
		if gen != m.eotGen {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.emit(TurnEvent{Type: TurnEventEoT, Reason: reason, Confidence: confidence, DelayMs: delayMs})
	})
}

// cancelEoTLocked stops any armed EoT timer. The caller must hold m.mu.
func (m *TurnManager) cancelEoTLocked() {
	if m.eotTimer != nil {
		m.eotTimer.Stop()
		m.eotTimer = nil
	}
	m.eotGen++
}

// OnTurnCommitted resets per-turn VAD/EoT bookkeeping after a commit.
func (m *TurnManager) OnTurnCommitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelEoTLocked()
	m.speechActive = false
	m.speechDuration = 0
	m.currentTranscript = ""
}

// Reset cancels all timers and clears state; used on session stop.
func (m *TurnManager) Reset() {
	m.mu.Lock()
	m.cancelEoTLocked()
	m.speechActive = false
	m.pendingBargeIn = false
	m.mu.Unlock()
	m.cancel()
}

// computeRMS returns the root-mean-square amplitude of 16-bit little-endian
// PCM samples, normalized to [0,1] by 32768, matching §4.3's algorithm.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		norm := float64(sample) / 32768.0
		sumSquares += norm * norm
	}
	return math.Sqrt(sumSquares / float64(n))
}
