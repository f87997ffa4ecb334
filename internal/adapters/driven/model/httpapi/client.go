// Package httpapi is the JSON-over-HTTP transport shared by model provider adapters.
//
// It applies the provider's rate limiter, classifies failures into
// domain.ProviderError kinds, and retries retryable failures with bounded
// exponential backoff before surfacing the last error.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/markhor/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Default retry and transport settings.
const (
	DefaultTimeout     = 120 * time.Second
	DefaultMaxRetries  = 2
	DefaultBaseBackoff = 500 * time.Millisecond
	DefaultMaxBackoff  = 30 * time.Second
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 64 << 20

// RetryPolicy bounds adapter-internal retries.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts (0 = DefaultMaxRetries, <0 = none).
	MaxRetries int

	// BaseBackoff is the first backoff delay, doubled per attempt (0 = DefaultBaseBackoff).
	BaseBackoff time.Duration

	// MaxBackoff caps every delay, including server retry-after hints (0 = DefaultMaxBackoff).
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	switch {
	case p.MaxRetries == 0:
		p.MaxRetries = DefaultMaxRetries
	case p.MaxRetries < 0:
		p.MaxRetries = 0
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	return p
}

// delay returns the wait before retry attempt n (0-based).
func (p RetryPolicy) delay(n int, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = p.BaseBackoff << n
	}
	return min(d, p.MaxBackoff)
}

// Config configures a Client.
type Config struct {
	// Provider labels errors and selects the default limiter.
	Provider domain.AIProvider

	// BaseURL is prefixed to every request path.
	BaseURL string

	// Headers are sent with every request (auth, API version).
	Headers map[string]string

	// Timeout bounds each attempt (0 = DefaultTimeout).
	Timeout time.Duration

	// Retry bounds retries.
	Retry RetryPolicy

	// Limiter throttles requests (nil = ratelimit.ForProvider).
	Limiter *ratelimit.Limiter

	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client sends JSON requests to one provider.
type Client struct {
	httpClient *http.Client
	provider   domain.AIProvider
	baseURL    string
	headers    map[string]string
	retry      RetryPolicy
	limiter    *ratelimit.Limiter
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.ForProvider(cfg.Provider)
	}
	return &Client{
		httpClient: httpClient,
		provider:   cfg.Provider,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		headers:    cfg.Headers,
		retry:      cfg.Retry.withDefaults(),
		limiter:    limiter,
		now:        time.Now,
		sleep:      sleep,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends in as JSON to path and decodes the response into out.
// model labels any error.
func (c *Client) Post(ctx context.Context, model, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.NewProviderError(domain.KindInvalidRequest, c.provider, model,
			fmt.Errorf("marshal request: %w", err))
	}
	return c.do(ctx, model, http.MethodPost, path, body, out)
}

// Get fetches path and decodes the response into out, which may be nil.
func (c *Client) Get(ctx context.Context, model, path string, out any) error {
	return c.do(ctx, model, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, model, method, path string, body []byte, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.attempt(ctx, model, method, path, body, out)
		if err == nil || ctx.Err() != nil || !isRetryable(err) || attempt >= c.retry.MaxRetries {
			return err
		}

		d := c.retry.delay(attempt, domain.RetryAfter(err))
		if kind, _ := domain.KindOf(err); kind == domain.KindRateLimited {
			// Hold every caller sharing the limiter, not just this one.
			c.limiter.Backoff(d)
		}
		logger.Debug("%s %s: %v, retrying in %s", c.provider, path, err, d)
		if werr := c.sleep(ctx, d); werr != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, model, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return TransportError(c.provider, model, err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.NewProviderError(domain.KindInvalidRequest, c.provider, model,
			fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransportError(c.provider, model, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return TransportError(c.provider, model, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Classify(c.provider, model, resp, data, c.now())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return Malformed(c.provider, model, "decode response", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
