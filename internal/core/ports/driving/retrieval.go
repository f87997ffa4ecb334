package driving

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// RetrievalService answers "which chunks are most relevant to this query".
type RetrievalService interface {
	// IndexDocument chunks, embeds and indexes the current revision of a document.
	// Chunk-level embedding failures are reported, not returned as errors.
	IndexDocument(ctx context.Context, documentID string) (*domain.IndexReport, error)

	// IndexWorkspace indexes every document the workspace lists.
	// Documents are processed concurrently; reports are in listing order.
	IndexWorkspace(ctx context.Context) ([]*domain.IndexReport, error)

	// Retrieve returns the k most relevant chunks for the query within scope.
	Retrieve(ctx context.Context, query string, k int, scope domain.RetrievalScope) ([]domain.RetrievedChunk, error)

	// DocumentChanged invalidates the document's entries, then re-indexes it.
	DocumentChanged(ctx context.Context, documentID string) (*domain.IndexReport, error)

	// DocumentRemoved invalidates the document's entries and forgets its chunks.
	DocumentRemoved(ctx context.Context, documentID string) error

	// RetryFailed re-embeds chunks that previously failed, within scope.
	RetryFailed(ctx context.Context, scope domain.RetrievalScope) (int, error)

	// Compact reclaims tombstoned index entries.
	Compact() int

	// Status returns the indexed state of a document.
	// Returns domain.ErrNotFound if the document was never indexed.
	Status(ctx context.Context, documentID string) (*domain.IndexState, error)
}
