package driven

import "github.com/custodia-labs/markhor/internal/core/domain"

// SimilarityIndex stores embeddings and answers nearest-neighbour queries.
// Queries never block on concurrent writers and observe a consistent
// snapshot as of call time.
type SimilarityIndex interface {
	// Insert adds one entry.
	// Returns domain.ErrDimensionMismatch or domain.ErrModelMismatch
	// if the entry does not match the index.
	Insert(entry domain.IndexEntry) error

	// InsertBatch adds entries atomically: all or none are published.
	InsertBatch(entries []domain.IndexEntry) error

	// Invalidate tombstones every live entry of the document.
	// Returns the number of entries tombstoned.
	Invalidate(documentID string) int

	// Compact physically removes tombstoned entries.
	// Returns the number of entries reclaimed.
	Compact() int

	// Query returns up to k live entries by descending cosine similarity.
	// Equal scores are ordered by insertion, earlier first.
	Query(vector []float32, k int, filter domain.QueryFilter) ([]domain.ScoredChunk, error)

	// Len returns the number of live entries.
	Len() int
}
