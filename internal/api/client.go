// Package api is the HTTP client for the finance backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/bankflow/internal/service"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// Resource names used in error messages.
const (
	resourceBankData     = "bankdata"
	resourceTransactions = "transactions"
	resourceCategories   = "categories"
	resourceAuth         = "auth"
)

// Client talks to the backend. Authenticated requests carry the stored
// bearer token; the client never retries.
type Client struct {
	authed  *http.Client
	plain   *http.Client
	baseURL string
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	clock     service.Clock
	timeout   time.Duration
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithClock sets the clock used to judge token expiry.
func WithClock(c service.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewClient creates a client for baseURL (without the /api suffix).
func NewClient(baseURL string, creds service.CredentialStore, opts ...Option) *Client {
	o := options{
		transport: http.DefaultTransport,
		clock:     service.SystemClock{},
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		plain: &http.Client{
			Timeout:   o.timeout,
			Transport: o.transport,
		},
		authed: &http.Client{
			Timeout: o.timeout,
			Transport: &oauth2.Transport{
				Source: &credentialSource{store: creds, clock: o.clock},
				Base:   o.transport,
			},
		},
	}
}

// request describes one backend call.
type request struct {
	body     any
	out      any
	method   string
	path     string
	resource string
	public   bool
}

func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", r.resource, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.authed
	if r.public {
		httpClient = c.plain
	}

	slog.Debug("Backend request", "method", r.method, "path", r.path)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", r.resource, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(r.resource, resp)
		slog.Debug("Backend error", "path", r.path, "status", resp.StatusCode, "error", apiErr)
		return apiErr
	}

	if r.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", r.resource, err)
	}
	return nil
}
