package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure ModelRegistry implements the interface.
var _ driving.ModelRegistry = (*ModelRegistry)(nil)

// registration pairs an adapter with the descriptor it was registered under.
type registration struct {
	descriptor domain.ModelDescriptor
	adapter    driven.Model
}

// ModelRegistry holds provider adapters in registration order.
// It is constructed explicitly and passed to the services that need it.
type ModelRegistry struct {
	mu     sync.RWMutex
	models []registration
}

// NewModelRegistry creates an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{}
}

// Register adds an adapter under its descriptor.
// The adapter must implement the variant interface of every capability the
// descriptor advertises.
func (r *ModelRegistry) Register(descriptor domain.ModelDescriptor, adapter driven.Model) error {
	if adapter == nil {
		return fmt.Errorf("%w: nil adapter for %s", domain.ErrInvalidConfiguration, descriptor.ID())
	}
	if err := descriptor.Validate(); err != nil {
		return err
	}
	for _, c := range descriptor.Capabilities {
		if !driven.ImplementsCapability(adapter, c) {
			return fmt.Errorf("%w: %s advertises %s but does not implement it",
				domain.ErrInvalidConfiguration, descriptor.ID(), c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.models {
		if m.descriptor.ID() == descriptor.ID() {
			return fmt.Errorf("%w: model %s", domain.ErrAlreadyExists, descriptor.ID())
		}
	}

	r.models = append(r.models, registration{descriptor: descriptor, adapter: adapter})
	logger.Debug("Registered model %s %v", descriptor.ID(), descriptor.Capabilities)
	return nil
}

// Resolve returns the adapter for a capability.
// A non-empty name must match exactly, either the bare model name or the
// "provider/name" form. An empty name picks the first adapter advertising
// the capability.
func (r *ModelRegistry) Resolve(capability domain.Capability, name string) (driven.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.models {
		if !m.descriptor.Supports(capability) {
			continue
		}
		if name == "" || name == m.descriptor.Name || name == m.descriptor.ID() {
			return m.adapter, nil
		}
	}

	if name == "" {
		return nil, fmt.Errorf("%w: no %s model registered", domain.ErrNoMatchingProvider, capability)
	}
	return nil, fmt.Errorf("%w: no %s model named %q", domain.ErrNoMatchingProvider, capability, name)
}

// ResolveEmbedding resolves an embedding model.
func (r *ModelRegistry) ResolveEmbedding(name string) (driven.EmbeddingModel, error) {
	m, err := r.Resolve(domain.CapabilityEmbedding, name)
	if err != nil {
		return nil, err
	}
	return m.(driven.EmbeddingModel), nil
}

// ResolveChat resolves a chat model.
func (r *ModelRegistry) ResolveChat(name string) (driven.ChatModel, error) {
	m, err := r.Resolve(domain.CapabilityChat, name)
	if err != nil {
		return nil, err
	}
	return m.(driven.ChatModel), nil
}

// ResolveCompletion resolves a completion model.
func (r *ModelRegistry) ResolveCompletion(name string) (driven.CompletionModel, error) {
	m, err := r.Resolve(domain.CapabilityCompletion, name)
	if err != nil {
		return nil, err
	}
	return m.(driven.CompletionModel), nil
}

// ResolveImage resolves an image model.
func (r *ModelRegistry) ResolveImage(name string) (driven.ImageModel, error) {
	m, err := r.Resolve(domain.CapabilityImage, name)
	if err != nil {
		return nil, err
	}
	return m.(driven.ImageModel), nil
}

// Capabilities returns the capabilities at least one adapter advertises,
// in the order they first appear.
func (r *ModelRegistry) Capabilities() []domain.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[domain.Capability]bool)
	var caps []domain.Capability
	for _, m := range r.models {
		for _, c := range m.descriptor.Capabilities {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}
	return caps
}

// Descriptors returns a copy of every registered descriptor.
func (r *ModelRegistry) Descriptors() []domain.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ModelDescriptor, len(r.models))
	for i, m := range r.models {
		out[i] = m.descriptor
	}
	return out
}

// Close closes every adapter and empties the registry.
func (r *ModelRegistry) Close() error {
	r.mu.Lock()
	models := r.models
	r.models = nil
	r.mu.Unlock()

	var errs []error
	for _, m := range models {
		if err := m.adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", m.descriptor.ID(), err))
		}
	}
	return errors.Join(errs...)
}
