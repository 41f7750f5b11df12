package voicecore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ProviderFactory constructs the AIProvider a new session should use. Kept
// as a function rather than a single shared instance so each session gets
// its own upstream connection.
type ProviderFactory func(cfg *Config) AIProvider

// VoiceEngine is the thin façade described in §2: it owns the process-wide
// config and session registry and is the entrypoint a transport layer
// (WebSocket handler, test harness) calls into to start and drive sessions.
// It holds no session logic of its own beyond construction and bookkeeping.
type VoiceEngine struct {
	cfg             *Config
	providerFactory ProviderFactory
	sessions        *SessionManager
}

// NewVoiceEngine builds an engine with the given base config and provider
// factory. Pass LoadConfigFromEnv() for cfg in a real deployment.
func NewVoiceEngine(cfg *Config, providerFactory ProviderFactory) *VoiceEngine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &VoiceEngine{
		cfg:             cfg,
		providerFactory: providerFactory,
		sessions:        NewSessionManager(),
	}
}

// StartSession constructs a new VoiceSession bound to transport, merges
// override and then any per-session override carried in env's payload on
// top of the engine's base config, registers it, and starts it.
func (e *VoiceEngine) StartSession(ctx context.Context, id string, transport Transport, override *Config, env Envelope) (*VoiceSession, error) {
	cfg := e.cfg.Merge(override)
	if len(env.Payload) > 0 {
		var fromEnv Config
		if err := json.Unmarshal(env.Payload, &fromEnv); err != nil {
			return nil, fmt.Errorf("voicecore: start session %s: %w: %v", id, errBadShape, err)
		}
		cfg = cfg.Merge(&fromEnv)
	}
	provider := e.providerFactory(cfg)

	session := NewVoiceSession(id, transport, provider, cfg)
	if err := e.sessions.Register(session); err != nil {
		return nil, fmt.Errorf("voicecore: start session %s: %w", id, err)
	}

	if err := session.Start(ctx, env); err != nil {
		e.sessions.Unregister(id)
		return nil, fmt.Errorf("voicecore: start session %s: %w", id, err)
	}
	return session, nil
}

// Session looks up a running session by id.
func (e *VoiceEngine) Session(id string) (*VoiceSession, bool) {
	return e.sessions.Get(id)
}

// StopSession stops and unregisters the session with id, if present.
func (e *VoiceEngine) StopSession(id, reason string) error {
	session, ok := e.sessions.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	err := session.Stop(reason)
	e.sessions.Unregister(id)
	return err
}

// Shutdown stops every live session, used on process shutdown.
func (e *VoiceEngine) Shutdown(reason string) {
	e.sessions.StopAll(reason)
}

// SessionCount reports how many sessions are currently registered.
func (e *VoiceEngine) SessionCount() int {
	return e.sessions.Count()
}
