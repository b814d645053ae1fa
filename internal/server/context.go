package server

import (
	"context"
	"sync"

	"github.com/Nanda8994/MCPD365Server/internal/entra"
	"github.com/Nanda8994/MCPD365Server/internal/instrumentation"
	"github.com/Nanda8994/MCPD365Server/internal/odata"
)

// ServerContext holds the process-wide state shared by all sessions: the
// credential cache, the OData client and the entity resolver. Sessions
// reference these, they never own them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg    entra.Config
	tokens *entra.Provider

	mu       sync.RWMutex
	client   *odata.Client
	resolver *odata.Resolver

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	shutdown    bool
}

// NewServerContext creates a new server context. The identity configuration
// is not validated here: a server may start without credentials and fail
// only when a tool actually needs a token.
func NewServerContext(ctx context.Context, cfg entra.Config) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
		tokens: entra.NewProvider(cfg),
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the Entra ID credential configuration.
func (sc *ServerContext) Config() entra.Config {
	return sc.cfg
}

// TokenProvider returns the Entra ID credential cache.
func (sc *ServerContext) TokenProvider() *entra.Provider {
	return sc.tokens
}

// Client returns the shared OData client, creating it on first use.
// Returns a configuration error when the resource base URL is absent.
func (sc *ServerContext) Client() (*odata.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.client != nil {
		return sc.client, nil
	}

	if sc.cfg.Resource == "" {
		return nil, &entra.ConfigError{Missing: []string{entra.EnvResourceURL}}
	}

	sc.client = odata.NewClient(sc.ctx, sc.cfg.Resource, sc.tokens.TokenSource(sc.ctx))
	return sc.client, nil
}

// Resolver returns the shared entity resolver, creating it on first use.
// The resolver's index itself is still built lazily, on the first lookup.
func (sc *ServerContext) Resolver() (*odata.Resolver, error) {
	sc.mu.Lock()
	if sc.resolver != nil {
		defer sc.mu.Unlock()
		return sc.resolver, nil
	}
	sc.mu.Unlock()

	client, err := sc.Client()
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.resolver == nil {
		opts := []odata.ResolverOption{}
		if sc.metrics != nil {
			opts = append(opts, odata.WithResolutionRecorder(sc.metrics))
		}
		sc.resolver = odata.NewResolver(client, opts...)
	}
	return sc.resolver, nil
}

// SetMetrics sets the metrics recorder used for tool instrumentation and
// wires it into the token provider.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	sc.metrics = m
	sc.mu.Unlock()
	if m != nil {
		sc.tokens.SetRefreshRecorder(m)
	}
}

// Metrics returns the metrics recorder, or nil if not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetAuditLogger sets the audit logger used for tool instrumentation.
func (sc *ServerContext) SetAuditLogger(l *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = l
}

// AuditLogger returns the audit logger, or nil if not configured.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
