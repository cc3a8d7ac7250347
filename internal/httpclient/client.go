// Package httpclient provides the shared HTTP client used by model fetchers:
// per-request timeout, rate limiting, and bounded retry with backoff for
// transient failures.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for HTTP responses with status >= 400. Callers
// branch on StatusCode to classify auth vs availability failures; Body is
// kept for protocol diagnosis.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

// errorBodyLimit bounds how much of the response body appears in the error
// string. Error strings get logged and persisted; the full body stays on
// the struct.
const errorBodyLimit = 512

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > errorBodyLimit {
		body = append(body[:errorBodyLimit:errorBodyLimit], "..."...)
	}
	return fmt.Sprintf("HTTP GET %s: status %d: %s", e.URL, e.StatusCode, body)
}

// Client is an HTTP client with rate limiting and retry.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryWait  time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// WithRateLimit sets requests per second.
func WithRateLimit(rps float64) Option {
	return func(cl *Client) {
		cl.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetries sets how many times a transient failure is retried and the
// initial backoff wait, doubled per attempt.
func WithRetries(n int, wait time.Duration) Option {
	return func(cl *Client) {
		cl.maxRetries = n
		cl.retryWait = wait
	}
}

// WithHTTPClient replaces the underlying client. Used for providers that
// need a pre-authenticated transport (e.g. an oauth2 token client).
func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

// New creates a new HTTP client.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response wraps an HTTP response body and metadata.
type Response struct {
	Body       []byte
	StatusCode int
}

// Get performs an HTTP GET. Transient failures (network errors, 429, 5xx)
// are retried with exponential backoff up to the configured limit; other
// error statuses return a *StatusError immediately.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	var lastErr error

	wait := c.retryWait
	if wait <= 0 {
		wait = 250 * time.Millisecond
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		resp, err := c.get(ctx, url, headers)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{Body: body, StatusCode: resp.StatusCode}, nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Anything else from Do is a transport-level failure.
	return true
}
