package voicecore

import (
	"context"
	"sync"
)

// SessionManager is the process-wide registry of live VoiceSessions, keyed
// by session ID. It owns no I/O of its own; callers (a WebSocket handler, a
// test harness) create the Transport/AIProvider pair and hand the resulting
// session to Register.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*VoiceSession
}

// NewSessionManager returns an empty registry.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*VoiceSession)}
}

// Register adds session to the registry under its own ID. The entry is not
// removed when the session stops; Unregister, StopAll or RemoveDeadSessions
// removes it.
func (m *SessionManager) Register(session *VoiceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID()]; exists {
		return ErrSessionAlreadyExist
	}
	m.sessions[session.ID()] = session
	return nil
}

// Get returns the session registered under id, if any.
func (m *SessionManager) Get(id string) (*VoiceSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Unregister removes the session with id from the registry. It is a no-op
// if the session is not present, so it is safe to call from both an
// explicit disconnect path and a deferred cleanup.
func (m *SessionManager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of currently registered sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll stops and unregisters every session, used on server shutdown.
func (m *SessionManager) StopAll(reason string) {
	m.mu.Lock()
	sessions := make([]*VoiceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*VoiceSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop(reason)
	}
}

// RemoveDeadSessions drops any registered session whose state has reached
// Stopped or Error but that was not unregistered through the normal close
// path (e.g. the underlying transport died mid-call, scenario 6 of §8).
func (m *SessionManager) RemoveDeadSessions(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		switch s.State() {
		case StateStopped, StateError:
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
