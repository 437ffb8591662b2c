// Package api provides an HTTP client for the finance dashboard REST API.
// It implements a deep module interface - simple methods hiding request plumbing.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/h0rv/finsight/internal/auth"
)

// DefaultTimeout bounds plain request/response calls. Streaming calls are
// bounded only by their context.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for non-2xx responses. Message comes from the
// JSON body's "message" field when present.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Client is a dashboard API client.
type Client struct {
	http   *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	baseURL *url.URL
	token   string
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the per-request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a new dashboard API client.
// A token is obtained from tokens if one is available; a missing token is not
// an error because the login and SSO endpoints are unauthenticated.
func New(baseURL string, tokens auth.TokenProvider, opts ...Option) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		http:    &http.Client{},
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		baseURL: u,
	}
	for _, opt := range opts {
		opt(c)
	}

	if tokens != nil {
		if token, err := tokens.GetToken(); err == nil {
			c.token = token
		} else {
			c.logger.Debug("no session token available", "error", err)
		}
	}

	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", raw)
	}
	return u, nil
}

// SetBaseURL points the client at a different server. Requests already in
// flight are unaffected.
func (c *Client) SetBaseURL(raw string) error {
	u, err := parseBaseURL(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.baseURL = u
	c.mu.Unlock()
	return nil
}

// BaseURL returns the current server URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL.String()
}

// SetTimeout changes the timeout of subsequent non-streaming calls.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// SetToken sets the bearer token sent with subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HasToken reports whether a bearer token is configured.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// makeRequest builds and sends a request with authentication.
// This is a helper method to avoid repeating header and URL setup.
func (c *Client) makeRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	c.mu.RLock()
	endpoint := c.baseURL.JoinPath(path)
	token := c.token
	c.mu.RUnlock()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	c.logger.Debug("api response", "method", method, "path", path, "status", resp.StatusCode)
	return resp, nil
}

// doJSON performs a bounded request and decodes a 2xx JSON body into out.
// out may be nil when the body is not needed.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.makeRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if !IsSuccess(resp.StatusCode) {
		return DecodeStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}

// DecodeStatusError drains a non-2xx response body and extracts its
// {"message": "..."} field. The body is not closed.
func DecodeStatusError(resp *http.Response) error {
	statusErr := &StatusError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return statusErr
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		statusErr.Message = payload.Message
	}
	return statusErr
}

// StatusMessage extracts the server-provided message from err, if any.
func StatusMessage(err error) (string, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message, true
	}
	return "", false
}
