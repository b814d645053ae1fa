package entra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/Nanda8994/MCPD365Server/internal/logging"
)

// DefaultExpiryBuffer is subtracted from the provider-reported token lifetime
// before computing the cached expiry, so a token is never handed out within
// the buffer window of its real expiry.
const DefaultExpiryBuffer = 60 * time.Second

// RefreshRecorder receives the outcome of each token exchange. Implemented
// by instrumentation.Metrics.
type RefreshRecorder interface {
	RecordTokenRefresh(ctx context.Context, result string)
}

// Provider acquires bearer tokens via the client credentials grant and caches
// the most recent one. It is safe for concurrent use; concurrent cache misses
// result in exactly one upstream exchange.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	buffer     time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	token    *oauth2.Token
	recorder RefreshRecorder

	group singleflight.Group
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets the HTTP client used for token exchanges.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = c }
}

// WithLogger sets the logger used by the provider.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// WithExpiryBuffer overrides the expiry buffer. Intended for tests.
func WithExpiryBuffer(d time.Duration) ProviderOption {
	return func(p *Provider) { p.buffer = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// SetRefreshRecorder sets the recorder notified about token exchanges. The
// provider is typically constructed before instrumentation is wired up, so
// this is a setter rather than an option.
func (p *Provider) SetRefreshRecorder(r RefreshRecorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

func (p *Provider) recordRefresh(ctx context.Context, result string) {
	p.mu.RLock()
	r := p.recorder
	p.mu.RUnlock()
	if r != nil {
		r.RecordTokenRefresh(ctx, result)
	}
}

// NewProvider creates a token provider for the given identity configuration.
// The configuration is validated lazily on first use, so a server can start
// without credentials and fail only when a tool actually needs a token.
func NewProvider(cfg Config, opts ...ProviderOption) *Provider {
	p := &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: DefaultExchangeTimeout},
		logger:     slog.Default(),
		buffer:     DefaultExpiryBuffer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a valid bearer token, refreshing it from Entra ID when the
// cached one is absent or has entered the expiry buffer. Reads of a valid
// cached token take only a read lock and perform no network call.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := p.cached(); tok != nil {
		return tok, nil
	}

	// Collapse concurrent refreshes into one exchange. All waiters share the
	// result of the single in-flight request.
	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		// A waiter that queued behind a completed refresh can reuse the cache.
		if tok := p.cached(); tok != nil {
			return tok, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// AccessToken returns just the bearer credential string.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TokenSource adapts the provider to oauth2.TokenSource so it can back an
// oauth2.NewClient HTTP client.
func (p *Provider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &providerTokenSource{ctx: ctx, provider: p}
}

// cached returns the cached token if it is still valid, nil otherwise.
func (p *Provider) cached() *oauth2.Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token != nil && p.now().Before(p.token.Expiry) {
		tok := *p.token
		return &tok
	}
	return nil
}

// refresh performs the client credentials exchange and overwrites the cached
// token. The previous credential is superseded; no history is kept.
func (p *Provider) refresh(ctx context.Context) (*oauth2.Token, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	tok, err := p.exchange(ctx)
	if err != nil {
		p.recordRefresh(ctx, "failure")
		return nil, err
	}
	p.recordRefresh(ctx, "success")
	return tok, nil
}

func (p *Provider) exchange(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("resource", p.cfg.Resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	fetchedAt := p.now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// The v1 endpoint reports expires_in as a JSON string, the v2 endpoint as
	// a number. json.Number accepts both.
	var payload struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	lifetime, err := payload.ExpiresIn.Int64()
	if err != nil || lifetime <= 0 {
		return nil, fmt.Errorf("invalid expires_in in token response: %q", payload.ExpiresIn)
	}

	tok := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   "Bearer",
		Expiry:      fetchedAt.Add(time.Duration(lifetime)*time.Second - p.buffer),
	}

	p.mu.Lock()
	p.token = tok
	p.mu.Unlock()

	p.logger.Debug("acquired Dynamics 365 bearer token",
		"token", logging.SanitizeToken(tok.AccessToken),
		"expires_at", tok.Expiry)

	copied := *tok
	return &copied, nil
}

// providerTokenSource bridges Provider to the oauth2.TokenSource interface,
// carrying the context the source was created with.
type providerTokenSource struct {
	ctx      context.Context
	provider *Provider
}

func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	return s.provider.Token(s.ctx)
}
