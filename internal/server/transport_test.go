package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`

func newTestTransport(t *testing.T) (*StreamableServer, *SessionRegistry) {
	t.Helper()
	registry := NewSessionRegistry(func() SessionHandler { return &countingHandler{} })
	t.Cleanup(registry.Stop)
	return NewStreamableServer(registry), registry
}

func postMCP(t *testing.T, handler http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInitializeEstablishesSession(t *testing.T) {
	srv, registry := newTestTransport(t)
	handler := srv.Handler()

	rec := postMCP(t, handler, "", initializeBody)

	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sessionID, "initialize response must carry the session id header")

	session, ok := registry.Get(sessionID)
	require.True(t, ok, "session must be registered under the returned id")
	assert.Equal(t, 1, session.Handler().(*countingHandler).callCount(),
		"the initialize request itself must be processed by the bound handler")
}

func TestNonInitializeWithoutSessionIDRejected(t *testing.T) {
	srv, registry := newTestTransport(t)
	handler := srv.Handler()

	body := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	rec := postMCP(t, handler, "", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, registry.Count(), "no session may be created for a non-initialize request")
}

func TestUnknownSessionIDRejected(t *testing.T) {
	srv, _ := newTestTransport(t)
	handler := srv.Handler()

	body := `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	rec := postMCP(t, handler, "11111111-2222-3333-4444-555555555555", body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessagesRouteToBoundHandler(t *testing.T) {
	srv, registry := newTestTransport(t)
	handler := srv.Handler()

	// Two independent sessions
	recA := postMCP(t, handler, "", initializeBody)
	recB := postMCP(t, handler, "", initializeBody)
	idA := recA.Header().Get(HeaderSessionID)
	idB := recB.Header().Get(HeaderSessionID)
	require.NotEqual(t, idA, idB, "concurrent sessions must get distinct ids")

	// Three follow-ups for A, one for B
	body := `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`
	for i := 0; i < 3; i++ {
		rec := postMCP(t, handler, idA, body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := postMCP(t, handler, idB, body)
	require.Equal(t, http.StatusOK, rec.Code)

	sessionA, _ := registry.Get(idA)
	sessionB, _ := registry.Get(idB)
	assert.Equal(t, 4, sessionA.Handler().(*countingHandler).callCount())
	assert.Equal(t, 2, sessionB.Handler().(*countingHandler).callCount())
}

func TestMalformedInitializeRejected(t *testing.T) {
	srv, registry := newTestTransport(t)
	handler := srv.Handler()

	rec := postMCP(t, handler, "", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, registry.Count())
}

func TestDeleteTerminatesSession(t *testing.T) {
	srv, registry := newTestTransport(t)
	handler := srv.Handler()

	rec := postMCP(t, handler, "", initializeBody)
	sessionID := rec.Header().Get(HeaderSessionID)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(HeaderSessionID, sessionID)
	del := httptest.NewRecorder()
	handler.ServeHTTP(del, req)

	assert.Equal(t, http.StatusOK, del.Code)
	assert.Equal(t, 0, registry.Count())

	// The id is gone; further messages are rejected
	after := postMCP(t, handler, sessionID, `{"jsonrpc":"2.0","id":4,"method":"tools/list"}`)
	assert.Equal(t, http.StatusNotFound, after.Code)
}

func TestDeleteUnknownSession(t *testing.T) {
	srv, _ := newTestTransport(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(HeaderSessionID, "missing")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationStreamRequiresSession(t *testing.T) {
	srv, _ := newTestTransport(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(HeaderSessionID, "missing")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestTransport(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPut, "/mcp", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIsInitializeRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"initialize", initializeBody, true},
		{"other method", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, false},
		{"invalid json", `{`, false},
		{"empty", ``, false},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"initialize"}]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isInitializeRequest([]byte(tt.body)))
		})
	}
}
