package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrUnsupportedType", ErrUnsupportedType},
		{"ErrNoMatchingProvider", ErrNoMatchingProvider},
		{"ErrInvalidConfiguration", ErrInvalidConfiguration},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrModelMismatch", ErrModelMismatch},
		{"ErrUnavailable", ErrUnavailable},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrInvalidRequest", ErrInvalidRequest},
		{"ErrProviderError", ErrProviderError},
		{"ErrModelClosed", ErrModelClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

// TestErrors_Wrapped tests sentinel matching through fmt.Errorf wrapping
func TestErrors_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("resolve embedding %q: %w", "nomic", ErrNoMatchingProvider)
	assert.True(t, errors.Is(wrapped, ErrNoMatchingProvider))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestProviderError_MatchesKindSentinel(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{KindUnavailable, ErrUnavailable},
		{KindRateLimited, ErrRateLimited},
		{KindInvalidRequest, ErrInvalidRequest},
		{KindProviderFailure, ErrProviderError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewProviderError(tt.kind, AIProviderOpenAI, "m", nil)
			assert.True(t, errors.Is(err, tt.sentinel))

			wrapped := fmt.Errorf("batch 2: %w", err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))

			kind, ok := KindOf(wrapped)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestProviderError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewProviderError(KindUnavailable, AIProviderOllama, "nomic-embed-text", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "ollama/nomic-embed-text")
}

func TestProviderError_Retryable(t *testing.T) {
	assert.True(t, NewProviderError(KindUnavailable, "", "", nil).Retryable())
	assert.True(t, NewProviderError(KindRateLimited, "", "", nil).Retryable())
	assert.False(t, NewProviderError(KindInvalidRequest, "", "", nil).Retryable())
	assert.False(t, NewProviderError(KindProviderFailure, "", "", nil).Retryable())

	assert.True(t, IsRetryable(fmt.Errorf("x: %w", ErrRateLimited)))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestProviderError_ErrorString(t *testing.T) {
	err := &ProviderError{
		Kind:       KindRateLimited,
		Provider:   AIProviderOpenAI,
		Model:      "text-embedding-3-small",
		StatusCode: 429,
		RetryAfter: 2 * time.Second,
		Message:    "slow down",
	}

	assert.Equal(t,
		"rate_limited (openai/text-embedding-3-small): status 429: slow down (retry after 2s)",
		err.Error())
}

func TestRetryAfter(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ProviderError{Kind: KindRateLimited, RetryAfter: 3 * time.Second})
	assert.Equal(t, 3*time.Second, RetryAfter(err))
	assert.Zero(t, RetryAfter(errors.New("other")))
}

func TestKindOf_NotProvider(t *testing.T) {
	_, ok := KindOf(errors.New("disk full"))
	assert.False(t, ok)
	_, ok = KindOf(nil)
	assert.False(t, ok)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("x: %w", ErrNoMatchingProvider)))
	assert.True(t, IsFatal(ErrInvalidConfiguration))
	assert.True(t, IsFatal(ErrDimensionMismatch))
	assert.True(t, IsFatal(ErrModelMismatch))
	assert.False(t, IsFatal(NewProviderError(KindProviderFailure, "", "", nil)))
	assert.False(t, IsFatal(nil))
}
