package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// ChunkStore persists chunks so query hits can be resolved back to text.
// Backed by SQLite or memory.
type ChunkStore interface {
	// SaveChunks stores chunks, replacing any with the same ID.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunk retrieves a chunk by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunks retrieves the chunks of a document in position order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// DeleteChunks removes every chunk of a document.
	DeleteChunks(ctx context.Context, documentID string) error

	// DeleteStaleChunks removes chunks of a document cut from revisions other than keep.
	DeleteStaleChunks(ctx context.Context, documentID string, keep uint64) error
}
