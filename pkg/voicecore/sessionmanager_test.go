package voicecore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegisteredSession(t *testing.T, mgr *SessionManager, id string) (*VoiceSession, *fakeProvider) {
	t.Helper()
	transport := &recordingTransport{}
	provider := newFakeProvider()
	cfg := DefaultConfig()
	session := NewVoiceSession(id, transport, provider, cfg)
	require.NoError(t, session.Start(context.Background(), Envelope{}))
	require.NoError(t, mgr.Register(session))
	return session, provider
}

func TestSessionManagerRegisterAndGet(t *testing.T) {
	mgr := NewSessionManager()
	session, _ := newRegisteredSession(t, mgr, "sess_a")
	defer session.Stop("test done")

	got, ok := mgr.Get("sess_a")
	assert.True(t, ok)
	assert.Same(t, session, got)
	assert.Equal(t, 1, mgr.Count())
}

func TestSessionManagerRejectsDuplicateID(t *testing.T) {
	mgr := NewSessionManager()
	session, _ := newRegisteredSession(t, mgr, "sess_dup")
	defer session.Stop("test done")

	other := NewVoiceSession("sess_dup", &recordingTransport{}, newFakeProvider(), DefaultConfig())
	require.ErrorIs(t, mgr.Register(other), ErrSessionAlreadyExist)
}

func TestSessionManagerUnregister(t *testing.T) {
	mgr := NewSessionManager()
	session, _ := newRegisteredSession(t, mgr, "sess_b")
	defer session.Stop("test done")

	mgr.Unregister("sess_b")
	_, ok := mgr.Get("sess_b")
	assert.False(t, ok)
	assert.Equal(t, 0, mgr.Count())
}

func TestSessionManagerRemoveDeadSessions(t *testing.T) {
	mgr := NewSessionManager()
	session, _ := newRegisteredSession(t, mgr, "sess_c")

	require.NoError(t, session.Stop("socket_closed"))

	removed := mgr.RemoveDeadSessions(context.Background())
	assert.Equal(t, 1, removed)
	_, ok := mgr.Get("sess_c")
	assert.False(t, ok)
}

func TestSessionManagerStopAll(t *testing.T) {
	mgr := NewSessionManager()
	s1, _ := newRegisteredSession(t, mgr, "sess_d")
	s2, _ := newRegisteredSession(t, mgr, "sess_e")

	mgr.StopAll("shutdown")

	assert.Equal(t, 0, mgr.Count())
	assert.Equal(t, StateStopped, s1.State())
	assert.Equal(t, StateStopped, s2.State())
}
