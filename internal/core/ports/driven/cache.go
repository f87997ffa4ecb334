package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// EmbeddingCache maps (model, use case, content hash) to a vector.
// Writes are idempotent and last writer wins; values for one key are
// expected to be identical since the key is content-derived.
// Implementations must be safe for concurrent use and must not retain
// or hand out caller-owned slices.
type EmbeddingCache interface {
	// Get returns the cached vector and true, or nil and false on a miss.
	Get(ctx context.Context, key domain.CacheKey) ([]float32, bool, error)

	// Put stores a vector.
	Put(ctx context.Context, key domain.CacheKey, vector []float32) error
}
