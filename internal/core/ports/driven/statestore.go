package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// IndexStateStore records which revision of each document is indexed and
// which of its chunks are awaiting an embedding retry.
type IndexStateStore interface {
	// SaveState stores the state, replacing any previous state of the document.
	SaveState(ctx context.Context, state domain.IndexState) error

	// GetState retrieves the state of a document.
	// Returns domain.ErrNotFound if the document was never indexed.
	GetState(ctx context.Context, documentID string) (*domain.IndexState, error)

	// DeleteState forgets a document.
	DeleteState(ctx context.Context, documentID string) error

	// ListStates returns every state, ordered by document ID.
	ListStates(ctx context.Context) ([]domain.IndexState, error)
}
