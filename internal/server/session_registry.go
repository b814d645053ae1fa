package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
)

// DefaultSessionTimeout is how long an idle session survives before the
// sweep reclaims it.
const DefaultSessionTimeout = 24 * time.Hour

// sessionSweepInterval is how often the idle-session sweep runs.
const sessionSweepInterval = 10 * time.Minute

// notifyBufferSize bounds the per-session notification queue. When the
// buffer is full, notifications are dropped, never blocking the sender.
const notifyBufferSize = 16

// SessionHandler processes JSON-RPC messages for one bound session.
// *mcpserver.MCPServer satisfies it via HandleMessage.
type SessionHandler interface {
	HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage
}

// HandlerFactory constructs a fresh handler at session establishment. Each
// session gets its own handler instance; handlers share state only through
// the ServerContext they close over.
type HandlerFactory func() SessionHandler

// Session is one established MCP conversation: the identifier generated at
// the initialize handshake and the handler bound to it.
type Session struct {
	id      string
	handler SessionHandler
	notify  chan mcp.JSONRPCNotification

	mu         sync.Mutex
	lastAccess time.Time
}

// ID returns the externally visible session identifier.
func (s *Session) ID() string {
	return s.id
}

// Handler returns the bound handler instance.
func (s *Session) Handler() SessionHandler {
	return s.handler
}

// Notifications returns the out-of-band notification channel for this
// session. The transport drains it into the SSE stream when one is open.
func (s *Session) Notifications() <-chan mcp.JSONRPCNotification {
	return s.notify
}

// Publish queues a notification for the session. Delivery is best-effort:
// when no listener is draining the channel the notification is dropped.
// Notification failures must never fail the primary request.
func (s *Session) Publish(n mcp.JSONRPCNotification) bool {
	select {
	case s.notify <- n:
		return true
	default:
		return false
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastAccess = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// SessionRegistry owns the mapping from session identifier to bound handler.
//
// A session is inserted exactly once, at the moment a valid initialize
// request with no prior session id is accepted. Lookups for unknown ids
// fail; the transport rejects those requests before any handler runs.
// Idle sessions are reclaimed by a background sweep.
type SessionRegistry struct {
	sessions       map[string]*Session
	mu             sync.RWMutex
	newHandler     HandlerFactory
	sessionTimeout time.Duration
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithSessionTimeout overrides the idle timeout after which a session is
// reclaimed.
func WithSessionTimeout(d time.Duration) RegistryOption {
	return func(r *SessionRegistry) { r.sessionTimeout = d }
}

// WithRegistryLogger sets the logger used by the registry.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *SessionRegistry) { r.logger = logger }
}

// WithRegistryMetrics sets the metrics recorder used by the registry.
func WithRegistryMetrics(m *instrumentation.Metrics) RegistryOption {
	return func(r *SessionRegistry) { r.metrics = m }
}

// NewSessionRegistry creates a session registry and starts the idle sweep.
// Call Stop to terminate the sweep goroutine.
func NewSessionRegistry(factory HandlerFactory, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions:       make(map[string]*Session),
		newHandler:     factory,
		sessionTimeout: DefaultSessionTimeout,
		cleanupTicker:  time.NewTicker(sessionSweepInterval),
		cleanupDone:    make(chan struct{}),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.sweepExpiredSessions()

	return r
}

// Create constructs a new handler, generates a unique session identifier and
// registers the pair atomically. Two concurrent calls always yield distinct
// identifiers with distinct bound handlers.
func (r *SessionRegistry) Create() *Session {
	handler := r.newHandler()

	r.mu.Lock()
	id := uuid.NewString()
	for {
		if _, exists := r.sessions[id]; !exists {
			break
		}
		id = uuid.NewString()
	}
	s := &Session{
		id:         id,
		handler:    handler,
		notify:     make(chan mcp.JSONRPCNotification, notifyBufferSize),
		lastAccess: time.Now(),
	}
	r.sessions[id] = s
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.IncrementActiveSessions(context.Background())
	}
	r.logger.Debug("session established", "session", id)

	return s
}

// Get returns the session bound to the given identifier. A hit refreshes the
// session's idle clock.
func (r *SessionRegistry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch()
	return s, true
}

// Remove deletes the session with the given identifier, if present.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	_, existed := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if existed {
		if r.metrics != nil {
			r.metrics.DecrementActiveSessions(context.Background())
		}
		r.logger.Debug("session removed", "session", sessionID)
	}
}

// Count returns the number of active sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListSessions returns all active session IDs.
func (r *SessionRegistry) ListSessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// sweepExpiredSessions periodically removes sessions idle past the timeout.
func (r *SessionRegistry) sweepExpiredSessions() {
	for {
		select {
		case <-r.cleanupTicker.C:
			now := time.Now()
			expired := 0

			r.mu.Lock()
			for id, s := range r.sessions {
				if now.Sub(s.idleSince()) > r.sessionTimeout {
					delete(r.sessions, id)
					expired++
				}
			}
			r.mu.Unlock()

			if expired > 0 {
				if r.metrics != nil {
					for i := 0; i < expired; i++ {
						r.metrics.DecrementActiveSessions(context.Background())
					}
				}
				r.logger.Info("cleaned up expired sessions", "count", expired)
			}
		case <-r.cleanupDone:
			return
		}
	}
}

// Stop stops the idle-session sweep goroutine.
func (r *SessionRegistry) Stop() {
	if r.cleanupTicker != nil {
		r.cleanupTicker.Stop()
	}
	if r.cleanupDone != nil {
		close(r.cleanupDone)
	}
}
