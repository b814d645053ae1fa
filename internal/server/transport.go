package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
)

// HeaderSessionID is the HTTP header carrying the MCP session identifier.
const HeaderSessionID = "Mcp-Session-Id"

// maxRequestBody bounds a single MCP request body.
const maxRequestBody = 4 << 20

// sseHeartbeatInterval is how often the notification stream emits a
// keep-alive comment when no notifications are pending.
const sseHeartbeatInterval = 30 * time.Second

// StreamableServer is the HTTP transport for MCP sessions.
//
// POST /mcp carries JSON-RPC messages. A request without a session id header
// must be an initialize request; it binds a new handler and returns the
// generated id in the Mcp-Session-Id response header. A request with a known
// id is routed to its bound handler. Anything else is rejected with a client
// error before any handler executes. GET /mcp opens the out-of-band
// notification stream for a session; DELETE /mcp closes the session.
type StreamableServer struct {
	registry   *SessionRegistry
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	health     *HealthChecker
	httpServer *http.Server
}

// StreamableOption configures a StreamableServer.
type StreamableOption func(*StreamableServer)

// WithTransportLogger sets the logger used by the transport.
func WithTransportLogger(logger *slog.Logger) StreamableOption {
	return func(s *StreamableServer) { s.logger = logger }
}

// WithTransportMetrics sets the metrics recorder used by the transport.
func WithTransportMetrics(m *instrumentation.Metrics) StreamableOption {
	return func(s *StreamableServer) { s.metrics = m }
}

// WithHealthChecker registers health check endpoints on the transport mux.
func WithHealthChecker(h *HealthChecker) StreamableOption {
	return func(s *StreamableServer) { s.health = h }
}

// NewStreamableServer creates the HTTP transport over the given registry.
func NewStreamableServer(registry *SessionRegistry, opts ...StreamableOption) *StreamableServer {
	s := &StreamableServer{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the MCP endpoint and, when
// configured, the health endpoints.
func (s *StreamableServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.instrumented(http.HandlerFunc(s.handleMCP)))
	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}
	return mux
}

// Start runs the HTTP server on the given address, blocking until shutdown.
func (s *StreamableServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// No WriteTimeout: the notification stream is long-lived.
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting MCP HTTP transport", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *StreamableServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *StreamableServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleNotificationStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost routes a JSON-RPC message to a session handler, enforcing the
// session-establishment handshake.
func (s *StreamableServer) handlePost(w http.ResponseWriter, r *http.Request) {
	tw := &trackingResponseWriter{ResponseWriter: w}

	// Any panic during routing or handling is caught at the boundary. If a
	// response was already partially sent, the transport owns recovery and
	// the failure is only logged.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic while handling MCP request", "panic", fmt.Sprint(rec))
			if !tw.wrote {
				http.Error(tw, "internal server error", http.StatusInternalServerError)
			}
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(tw, "failed to read request body", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(HeaderSessionID)
	var session *Session

	if sessionID == "" {
		// Only a valid initialize request may establish a session.
		if !isInitializeRequest(body) {
			s.logger.Debug("rejected request without session id")
			http.Error(tw, "missing session id: the first request must be an initialize request", http.StatusBadRequest)
			return
		}
		session = s.registry.Create()
		// The id must be on the wire before the body is written.
		tw.Header().Set(HeaderSessionID, session.ID())
	} else {
		var ok bool
		session, ok = s.registry.Get(sessionID)
		if !ok {
			s.logger.Debug("rejected request with unknown session id", "session", sessionID)
			http.Error(tw, "unknown session id", http.StatusNotFound)
			return
		}
	}

	response := session.Handler().HandleMessage(r.Context(), body)
	if response == nil {
		// Notifications produce no response.
		tw.WriteHeader(http.StatusAccepted)
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("failed to marshal JSON-RPC response", "error", err)
		if !tw.wrote {
			http.Error(tw, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	tw.Header().Set("Content-Type", "application/json")
	tw.WriteHeader(http.StatusOK)
	if _, err := tw.Write(payload); err != nil {
		// Too late for an error response; the transport owns partial-response
		// recovery.
		s.logger.Warn("failed to write response body", "error", err)
	}
}

// handleNotificationStream serves the out-of-band SSE notification channel
// for an established session. Delivery failures are logged and swallowed;
// they never affect request processing.
func (s *StreamableServer) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	session, ok := s.registry.Get(sessionID)
	if !ok {
		http.Error(w, "unknown session id", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial tick so clients see the stream open immediately.
	_, _ = io.WriteString(w, ":\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ":\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n := <-session.Notifications():
			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Warn("failed to marshal notification", "error", err, "session", sessionID)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				s.logger.Warn("notification delivery failed", "error", err, "session", sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

// handleDelete removes a session at the client's request.
func (s *StreamableServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(sessionID); !ok {
		http.Error(w, "unknown session id", http.StatusNotFound)
		return
	}
	s.registry.Remove(sessionID)
	w.WriteHeader(http.StatusOK)
}

// instrumented wraps a handler with HTTP request metrics.
func (s *StreamableServer) instrumented(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingResponseWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(tw, r)
		status := tw.status
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
	})
}

// isInitializeRequest reports whether the body is a single JSON-RPC
// initialize request. Batches are not accepted for session establishment.
func isInitializeRequest(body []byte) bool {
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Method == string(mcp.MethodInitialize)
}

// trackingResponseWriter remembers whether a response has been started, so
// the error boundary knows if it may still emit a server-error response.
type trackingResponseWriter struct {
	http.ResponseWriter
	wrote  bool
	status int
}

func (w *trackingResponseWriter) WriteHeader(statusCode int) {
	if !w.wrote {
		w.wrote = true
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *trackingResponseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.wrote = true
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush lets the SSE stream work through the tracking wrapper.
func (w *trackingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
