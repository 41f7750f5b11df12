// Package server provides WebSocket server implementations for Realtime API.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/realtime-ai/realtime-ai/pkg/voicecore"
)

// VoiceConfig holds the configuration for the voicecore WebSocket server,
// adapted from WebSocketRealtimeConfig to the voicecore envelope/transport
// protocol instead of the Realtime API event protocol.
type VoiceConfig struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string
	// Path is the WebSocket endpoint path (e.g., "/v1/voice").
	Path string
	// AuthToken is the bearer token for authentication. Empty disables it.
	AuthToken string
	// MaxSessionsPerIP limits concurrent sessions per IP. 0 means no limit.
	MaxSessionsPerIP int
	ReadBufferSize   int
	WriteBufferSize  int
}

// DefaultVoiceConfig returns the server defaults.
func DefaultVoiceConfig() *VoiceConfig {
	return &VoiceConfig{
		Addr:             ":8080",
		Path:             "/v1/voice",
		MaxSessionsPerIP: 10,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// VoiceServer upgrades inbound WebSocket connections to voicecore sessions,
// one per connection, each driven through a VoiceEngine. Its per-connection
// wsTransport is the concrete implementation this module ships for the
// `Transport` interface voicecore treats as an external collaborator.
type VoiceServer struct {
	cfg    *VoiceConfig
	engine *voicecore.VoiceEngine

	ipSessions   map[string]int
	ipSessionsMu sync.Mutex

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc
}

// NewVoiceServer builds a server around an already-constructed engine.
func NewVoiceServer(cfg *VoiceConfig, engine *voicecore.VoiceEngine) *VoiceServer {
	if cfg == nil {
		cfg = DefaultVoiceConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &VoiceServer{
		cfg:        cfg,
		engine:     engine,
		ipSessions: make(map[string]int),
		mux:        http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the WebSocket endpoint and begins serving. It returns once
// the listener is up or an immediate bind error occurs.
func (s *VoiceServer) Start(ctx context.Context) error {
	s.mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: s.mux}

	log.Printf("[VoiceServer] starting on %s%s", s.cfg.Addr, s.cfg.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts down every live session and the HTTP listener.
func (s *VoiceServer) Stop(ctx context.Context) error {
	s.cancel()
	s.engine.Shutdown("server_shutdown")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *VoiceServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimPrefix(authHeader, "Bearer ") != s.cfg.AuthToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	clientIP := clientIP(r)
	if s.cfg.MaxSessionsPerIP > 0 {
		s.ipSessionsMu.Lock()
		count := s.ipSessions[clientIP]
		s.ipSessionsMu.Unlock()
		if count >= s.cfg.MaxSessionsPerIP {
			http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[VoiceServer] upgrade failed: %v", err)
		return
	}

	s.ipSessionsMu.Lock()
	s.ipSessions[clientIP]++
	s.ipSessionsMu.Unlock()
	defer func() {
		s.ipSessionsMu.Lock()
		s.ipSessions[clientIP]--
		s.ipSessionsMu.Unlock()
	}()

	sessionID := "sess_" + uuid.New().String()[:16]
	transport := &wsTransport{conn: conn}

	session, err := s.engine.StartSession(r.Context(), sessionID, transport, nil, voicecore.Envelope{})
	if err != nil {
		log.Printf("[VoiceServer] failed to start session %s: %v", sessionID, err)
		conn.Close()
		return
	}

	s.readLoop(session, conn)
}

// readLoop pumps inbound WebSocket frames into the session until the
// connection dies, mirroring the teacher's one-goroutine-per-connection
// read loop.
func (s *VoiceServer) readLoop(session *voicecore.VoiceSession, conn *websocket.Conn) {
	defer func() {
		session.Stop("socket_closed")
		s.engine.StopSession(session.ID(), "socket_closed")
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[VoiceServer] [session %s] read error: %v", session.ID(), err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := session.OnBinaryAudio(data); err != nil {
				log.Printf("[VoiceServer] [session %s] binary audio: %v", session.ID(), err)
			}
		case websocket.TextMessage:
			var env voicecore.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Printf("[VoiceServer] [session %s] malformed envelope: %v", session.ID(), err)
				continue
			}
			if err := session.OnControl(env); err != nil {
				log.Printf("[VoiceServer] [session %s] control: %v", session.ID(), err)
			}
		}
	}
}

// wsTransport adapts a *websocket.Conn to voicecore.Transport: control
// envelopes go out as JSON text frames, audio frames as the bit-exact
// binary wire format, both serialized through one mutex since
// *websocket.Conn forbids concurrent writers.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) SendControl(env voicecore.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

func (t *wsTransport) SendAudio(frame voicecore.AudioFrame) error {
	b, err := voicecore.EncodeAudioFrameForTransport(frame)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}
