package voicecore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTransport struct {
	mu       sync.Mutex
	controls []Envelope
	audio    []AudioFrame
}

func (t *recordingTransport) SendControl(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = append(t.controls, env)
	return nil
}

func (t *recordingTransport) SendAudio(frame AudioFrame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = append(t.audio, frame)
	return nil
}

func (t *recordingTransport) Close() error { return nil }

func (t *recordingTransport) types() []EnvelopeType {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EnvelopeType, len(t.controls))
	for i, c := range t.controls {
		out[i] = c.Type
	}
	return out
}

type fakeProvider struct {
	mu         sync.Mutex
	events     chan ProviderEvent
	active     bool
	committed  int
	cleared    int
	cancelled  int
	appended   [][]byte
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan ProviderEvent, 64)}
}

func (p *fakeProvider) Connect(ctx context.Context) error { return nil }

func (p *fakeProvider) SendAudioAppend(ctx context.Context, pcm16 []byte, sampleRateHz int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appended = append(p.appended, pcm16)
	return nil
}

func (p *fakeProvider) SendAudioCommit(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.committed++
	return nil
}

func (p *fakeProvider) SendAudioClear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
	return nil
}

func (p *fakeProvider) CreateResponse(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return ErrResponseInProgress
	}
	p.active = true
	return nil
}

func (p *fakeProvider) CancelResponse(ctx context.Context, responseID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.cancelled++
	return nil
}

func (p *fakeProvider) TruncateItem(ctx context.Context, itemID string, contentIndex int, audioEndMs int) error {
	return nil
}

func (p *fakeProvider) Events() <-chan ProviderEvent { return p.events }

func (p *fakeProvider) Close() error { return nil }

func newTestSession(t *testing.T) (*VoiceSession, *recordingTransport, *fakeProvider) {
	t.Helper()
	transport := &recordingTransport{}
	provider := newFakeProvider()
	cfg := DefaultConfig()
	cfg.MinUserAudioMs = 100
	cfg.MinCommitMs = 1
	cfg.MinCommitBytes = 1
	session := NewVoiceSession("sess_test", transport, provider, cfg)
	require.NoError(t, session.Start(context.Background(), Envelope{MsgID: "msg_start"}))
	return session, transport, provider
}

func TestSessionStartTransitionsToReady(t *testing.T) {
	session, transport, _ := newTestSession(t)
	defer session.Stop("test done")

	assert.Equal(t, StateReady, session.State())
	types := transport.types()
	assert.Contains(t, types, TypeSessionStarted)
	assert.Contains(t, types, TypeSessionState)
}

func TestSessionHappyTurnCommit(t *testing.T) {
	session, transport, provider := newTestSession(t)
	defer session.Stop("test done")

	loud := loudFrame(20)
	loud.Kind = FrameKindInput
	for i := 0; i < 9; i++ {
		require.NoError(t, session.OnAudio(loud))
	}

	require.NoError(t, session.OnControl(Envelope{Type: TypeAudioCommit, MsgID: "msg_commit"}))

	assert.Equal(t, StateThinking, session.State())
	assert.Equal(t, 1, provider.committed)
	assert.Contains(t, transport.types(), TypeAudioCommitted)
}

func TestSessionEmptyTurnSkipped(t *testing.T) {
	session, transport, provider := newTestSession(t)
	defer session.Stop("test done")

	silence := silentFrame(20)
	silence.Kind = FrameKindInput
	for i := 0; i < 9; i++ {
		require.NoError(t, session.OnAudio(silence))
	}

	require.NoError(t, session.OnControl(Envelope{Type: TypeAudioCommit, MsgID: "msg_commit"}))

	assert.Equal(t, StateListening, session.State())
	assert.Zero(t, provider.committed)
	assert.Contains(t, transport.types(), TypeWarning)
}

func TestSessionSecondCommitBlockedByState(t *testing.T) {
	session, _, _ := newTestSession(t)
	defer session.Stop("test done")

	loud := loudFrame(20)
	loud.Kind = FrameKindInput
	for i := 0; i < 9; i++ {
		require.NoError(t, session.OnAudio(loud))
	}
	require.NoError(t, session.OnControl(Envelope{Type: TypeAudioCommit}))
	require.Equal(t, StateThinking, session.State())

	transport := session.transport.(*recordingTransport)
	before := len(transport.types())

	require.NoError(t, session.OnControl(Envelope{Type: TypeAudioCommit}))

	after := transport.types()
	assert.Equal(t, TypeWarning, after[len(after)-1])
	assert.Greater(t, len(after), before-1)
}

func TestSessionBargeInClearsOutputAndInterrupts(t *testing.T) {
	session, transport, provider := newTestSession(t)
	defer session.Stop("test done")

	require.NoError(t, session.submit(func() {
		session.state = StateSpeaking
		session.currentResponseID = "resp_1"
		session.pipeline.appendOutputFrame(AudioFrame{Bytes: []byte{1, 2}})
	}))

	require.NoError(t, session.submit(func() {
		session.handleBargeIn("barge_in")
	}))

	assert.Equal(t, StateInterrupted, session.State())
	assert.Equal(t, 1, provider.cancelled)
	assert.Contains(t, transport.types(), TypeAudioClear)
}

func TestSessionStopIsIdempotent(t *testing.T) {
	session, _, _ := newTestSession(t)
	require.NoError(t, session.Stop("first"))
	require.NoError(t, session.Stop("second"))
	assert.Equal(t, StateStopped, session.State())
}

func TestSessionProviderResponseLifecycle(t *testing.T) {
	session, transport, provider := newTestSession(t)
	defer session.Stop("test done")

	// a response follows a committed turn, so start from thinking
	require.NoError(t, session.submit(func() {
		session.state = StateThinking
	}))

	provider.events <- ProviderEvent{Type: ProviderEventResponseStarted, ResponseID: "resp_1"}

	require.Eventually(t, func() bool {
		return session.State() == StateSpeaking
	}, time.Second, 5*time.Millisecond)

	provider.events <- ProviderEvent{Type: ProviderEventResponseDone, ResponseID: "resp_1"}

	require.Eventually(t, func() bool {
		return session.State() == StateReady
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, transport.types(), TypeAssistantState)
}

func TestSessionOnBinaryAudioRoundTrip(t *testing.T) {
	session, _, provider := newTestSession(t)
	defer session.Stop("test done")

	frame := loudFrame(20)
	frame.Kind = FrameKindInput
	frame.SampleRateHz = 24000
	encoded, err := encodeAudioFrame(frame)
	require.NoError(t, err)

	require.NoError(t, session.OnBinaryAudio(encoded))

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return len(provider.appended) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSessionIdleTimeoutClosesSession(t *testing.T) {
	transport := &recordingTransport{}
	provider := newFakeProvider()
	cfg := DefaultConfig()
	cfg.MinUserAudioMs = 100
	cfg.MinCommitMs = 1
	cfg.MinCommitBytes = 1
	session := NewVoiceSession("sess_idle", transport, provider, cfg)
	require.NoError(t, session.Start(context.Background(), Envelope{MsgID: "msg_start"}))
	defer session.Stop("test done")

	require.NoError(t, session.submit(func() {
		session.armIdleTimer()
		session.idleMu.Lock()
		session.idleTimer.Reset(time.Millisecond)
		session.idleMu.Unlock()
	}))

	require.Eventually(t, func() bool {
		return session.State() == StateStopped
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, transport.types(), TypeError)
}

func TestSessionTextInputRejectsEmpty(t *testing.T) {
	session, transport, _ := newTestSession(t)
	defer session.Stop("test done")

	payload, _ := json.Marshal(map[string]string{"text": "  "})
	require.NoError(t, session.OnControl(Envelope{Type: TypeTextInput, Payload: payload}))

	assert.Contains(t, transport.types(), TypeWarning)
}
