package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// Workspace exposes the documents the retrieval core reads.
// The workspace owns document lifecycle; the core never writes through it.
type Workspace interface {
	// ID identifies the workspace.
	ID() string

	// GetDocument returns the current text and revision of a document.
	// Returns domain.ErrNotFound if the document does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns the IDs of all documents, sorted.
	ListDocuments(ctx context.Context) ([]string, error)
}

// ChangeKind classifies a workspace notification.
type ChangeKind string

// Workspace change kinds.
const (
	// ChangeModified covers both creation and content edits.
	ChangeModified ChangeKind = "modified"

	// ChangeRemoved is a document deletion or rename away.
	ChangeRemoved ChangeKind = "removed"
)

// DocumentChange is one workspace notification.
type DocumentChange struct {
	DocumentID string
	Kind       ChangeKind
}

// WorkspaceWatcher streams document change notifications.
type WorkspaceWatcher interface {
	// Watch emits changes until ctx is cancelled, then closes the channel.
	Watch(ctx context.Context) (<-chan DocumentChange, error)
}
