package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

// Provider error kinds.
const (
	// KindUnavailable is a network or auth failure. Retryable.
	KindUnavailable ErrorKind = "unavailable"

	// KindRateLimited is a throttling response carrying a retry-after hint. Retryable.
	KindRateLimited ErrorKind = "rate_limited"

	// KindInvalidRequest is a request the provider refused. Not retryable.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindProviderFailure is an opaque upstream failure. Not retryable.
	KindProviderFailure ErrorKind = "provider_error"
)

// Sentinel returns the package sentinel matching the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindUnavailable:
		return ErrUnavailable
	case KindRateLimited:
		return ErrRateLimited
	case KindInvalidRequest:
		return ErrInvalidRequest
	default:
		return ErrProviderError
	}
}

// Retryable returns true for kinds that may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindUnavailable || k == KindRateLimited
}

// ProviderError is the typed failure every model adapter returns.
// It matches its kind's sentinel via errors.Is and also unwraps to the
// underlying cause, if any.
type ProviderError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Provider is the service that failed.
	Provider AIProvider

	// Model is the model name the request targeted.
	Model string

	// StatusCode is the HTTP status, if the failure came from a response.
	StatusCode int

	// RetryAfter is the provider's backoff hint (zero when absent).
	RetryAfter time.Duration

	// Message is the provider's own error text.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" || e.Model != "" {
		fmt.Fprintf(&b, " (%s", e.Provider)
		if e.Model != "" {
			fmt.Fprintf(&b, "/%s", e.Model)
		}
		b.WriteString(")")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " (retry after %s)", e.RetryAfter)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// Retryable returns true if the failure may succeed on a later attempt.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

// NewProviderError creates a ProviderError of the given kind.
func NewProviderError(kind ErrorKind, provider AIProvider, model string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Model: model, Err: err}
}

// KindOf returns the provider error kind carried by err.
// The second return value is false if err is not a provider failure.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited, true
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable, true
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest, true
	case errors.Is(err, ErrProviderError):
		return KindProviderFailure, true
	}
	return "", false
}

// RetryAfter returns the backoff hint carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// IsRetryable reports whether err is a retryable provider failure.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.Retryable()
}

// IsFatal reports whether err is a pipeline misconfiguration that must fail
// the whole call rather than a single chunk.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoMatchingProvider) ||
		errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrModelMismatch)
}
