package driving

import (
	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// ModelRegistry holds configured provider adapters and resolves requests to them.
type ModelRegistry interface {
	// Register adds an adapter under its descriptor.
	// Returns domain.ErrAlreadyExists for a duplicate provider/name pair.
	Register(descriptor domain.ModelDescriptor, adapter driven.Model) error

	// Resolve returns the adapter for a capability.
	// An empty name selects the first registered adapter advertising it.
	// Returns domain.ErrNoMatchingProvider when nothing satisfies the request.
	Resolve(capability domain.Capability, name string) (driven.Model, error)

	// ResolveEmbedding resolves and narrows to the embedding variant.
	ResolveEmbedding(name string) (driven.EmbeddingModel, error)

	// ResolveChat resolves and narrows to the chat variant.
	ResolveChat(name string) (driven.ChatModel, error)

	// ResolveCompletion resolves and narrows to the completion variant.
	ResolveCompletion(name string) (driven.CompletionModel, error)

	// ResolveImage resolves and narrows to the image variant.
	ResolveImage(name string) (driven.ImageModel, error)

	// Capabilities returns every capability at least one adapter advertises.
	Capabilities() []domain.Capability

	// Descriptors returns all registered descriptors in registration order.
	Descriptors() []domain.ModelDescriptor

	// Close closes every registered adapter.
	Close() error
}
