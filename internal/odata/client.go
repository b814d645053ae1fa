package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultCallTimeout bounds a single upstream OData call.
const DefaultCallTimeout = 60 * time.Second

// actionNamespace is the OData namespace for bound data entity actions.
const actionNamespace = "Microsoft.Dynamics.DataEntities"

// Client wraps the Dynamics 365 OData endpoint. All calls carry a bearer
// token injected by the oauth2 transport the client is constructed with.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used by the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates an OData client for the given environment base URL. The
// token source is typically an entra.Provider; oauth2.NewClient wires token
// acquisition into the HTTP transport so every call is authenticated.
func NewClient(ctx context.Context, baseURL string, src oauth2.TokenSource, opts ...ClientOption) *Client {
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = DefaultCallTimeout

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the environment base URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListEntities enumerates the full data entity catalog. This is the
// enumeration the entity resolver builds its index from.
func (c *Client) ListEntities(ctx context.Context) ([]EntityDefinition, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/data", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []EntityDefinition `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode entity catalog: %w", err)
	}

	// Locators are stored service-root relative so they can be joined onto
	// the base URL regardless of how the catalog reports them.
	for i, e := range payload.Value {
		payload.Value[i].URL = normalizeLocator(e.URL, e.Name)
	}
	return payload.Value, nil
}

// QueryRecords fetches records from an entity set using the given query
// options. The raw OData response body is returned for the caller to shape.
func (c *Client) QueryRecords(ctx context.Context, locator string, opts QueryOptions) (json.RawMessage, error) {
	u := c.baseURL + locator
	if q := encodeQueryOptions(opts); q != "" {
		u += "?" + q
	}
	return c.do(ctx, http.MethodGet, u, nil)
}

// GetRecord fetches a single record by its OData key, e.g.
// "dataAreaId='usmf',CustomerAccount='US-001'".
func (c *Client) GetRecord(ctx context.Context, locator, key string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.recordURL(locator, key), nil)
}

// CreateRecord inserts a new record into an entity set.
func (c *Client) CreateRecord(ctx context.Context, locator string, record json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+locator, record)
}

// UpdateRecord applies a partial update (PATCH) to the record with the given
// key. Dynamics 365 answers 204 No Content on success.
func (c *Client) UpdateRecord(ctx context.Context, locator, key string, record json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPatch, c.recordURL(locator, key), record)
	return err
}

// DeleteRecord removes the record with the given key.
func (c *Client) DeleteRecord(ctx context.Context, locator, key string) error {
	_, err := c.do(ctx, http.MethodDelete, c.recordURL(locator, key), nil)
	return err
}

// CallAction invokes an unbound-or-collection-bound OData action on an
// entity set, e.g. "postInvoice".
func (c *Client) CallAction(ctx context.Context, locator, action string, params json.RawMessage) (json.RawMessage, error) {
	u := fmt.Sprintf("%s%s/%s.%s", c.baseURL, locator, actionNamespace, action)
	return c.do(ctx, http.MethodPost, u, params)
}

// do performs one upstream call. Any non-2xx response is surfaced as a
// *CallError carrying the status and body text; 204 yields a nil body.
func (c *Client) do(ctx context.Context, method, rawURL string, payload json.RawMessage) (json.RawMessage, error) {
	var reqBody io.Reader
	if len(payload) > 0 {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Dynamics 365 call completed",
		"method", method,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// recordURL builds the address of a single record within an entity set.
func (c *Client) recordURL(locator, key string) string {
	return fmt.Sprintf("%s%s(%s)", c.baseURL, locator, key)
}

// encodeQueryOptions renders the OData system query options.
func encodeQueryOptions(opts QueryOptions) string {
	q := url.Values{}
	if opts.Filter != "" {
		q.Set("$filter", opts.Filter)
	}
	if len(opts.Select) > 0 {
		q.Set("$select", strings.Join(opts.Select, ","))
	}
	if opts.OrderBy != "" {
		q.Set("$orderby", opts.OrderBy)
	}
	if opts.Expand != "" {
		q.Set("$expand", opts.Expand)
	}
	if opts.Top > 0 {
		q.Set("$top", strconv.Itoa(opts.Top))
	}
	if opts.CrossCompany {
		q.Set("cross-company", "true")
	}
	return q.Encode()
}

// normalizeLocator makes an entity locator service-root relative. Catalogs
// may report a bare set name, a relative path or an absolute URL.
func normalizeLocator(locator, name string) string {
	if locator == "" {
		return "/data/" + name
	}
	if u, err := url.Parse(locator); err == nil && u.IsAbs() {
		locator = u.Path
	}
	if !strings.HasPrefix(locator, "/") {
		locator = "/data/" + locator
	}
	return locator
}
