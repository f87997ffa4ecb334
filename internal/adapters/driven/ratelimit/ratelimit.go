// Package ratelimit throttles outbound model provider requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// Config holds rate limiting configuration for a provider.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultBackoff applies when a throttling response carries no retry-after hint.
const DefaultBackoff = 5 * time.Second

// DefaultConfigs provides conservative defaults per provider.
// Local Ollama is effectively unthrottled.
var DefaultConfigs = map[domain.AIProvider]Config{
	domain.AIProviderOllama:    {RequestsPerSecond: 100, BurstSize: 100},
	domain.AIProviderOpenAI:    {RequestsPerSecond: 50, BurstSize: 20},
	domain.AIProviderAnthropic: {RequestsPerSecond: 10, BurstSize: 5},
	domain.AIProviderGemini:    {RequestsPerSecond: 10, BurstSize: 10},
}

// Limiter is a token bucket with an additional backoff window that
// throttling responses extend.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	now     func() time.Time
}

// New creates a limiter with the given configuration.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		now:     time.Now,
	}
}

// ForProvider creates a limiter with the provider's default configuration.
func ForProvider(p domain.AIProvider) *Limiter {
	cfg, ok := DefaultConfigs[p]
	if !ok {
		cfg = Config{RequestsPerSecond: 5, BurstSize: 10}
	}
	return New(cfg)
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff window set by Backoff.
func (l *Limiter) Wait(ctx context.Context) error {
	if d := l.remaining(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.limiter.Wait(ctx)
}

// Backoff holds all requests for d. A later window never shortens an earlier one.
func (l *Limiter) Backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultBackoff
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(d); until.After(l.retryAt) {
		l.retryAt = until
	}
}

// Allow reports whether a request may be made immediately, consuming a token if so.
func (l *Limiter) Allow() bool {
	if l.remaining() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// remaining returns how long the backoff window has left.
func (l *Limiter) remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryAt.Sub(l.now())
}
