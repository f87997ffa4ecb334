package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider, tokenizer or processor type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Pipeline Errors.
	// These indicate caller error and are never retried automatically.

	// ErrNoMatchingProvider indicates no registered model satisfies a request.
	ErrNoMatchingProvider = errors.New("no matching provider")

	// ErrInvalidConfiguration indicates settings that cannot produce a working pipeline.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates vectors of different lengths were combined.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrModelMismatch indicates embeddings from different models were mixed in one index.
	ErrModelMismatch = errors.New("model mismatch")

	// Provider Errors.
	// Adapters surface exactly one of these (via *ProviderError) after
	// exhausting their own retries.

	// ErrUnavailable indicates a network or authentication failure (retryable).
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRateLimited indicates the API rate limit was exceeded (retryable after a delay).
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidRequest indicates the provider rejected the request (caller error).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProviderError indicates an opaque upstream failure.
	ErrProviderError = errors.New("provider error")

	// ErrModelClosed indicates the adapter has been closed.
	ErrModelClosed = errors.New("model closed")
)
