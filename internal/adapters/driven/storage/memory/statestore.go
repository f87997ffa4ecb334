package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure StateStore implements the interface.
var _ driven.IndexStateStore = (*StateStore)(nil)

// StateStore is an in-memory implementation of driven.IndexStateStore.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]domain.IndexState
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]domain.IndexState),
	}
}

// SaveState stores the state of a document.
func (s *StateStore) SaveState(_ context.Context, state domain.IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.FailedChunkIDs = slices.Clone(state.FailedChunkIDs)
	s.states[state.DocumentID] = state
	return nil
}

// GetState retrieves the state of a document.
func (s *StateStore) GetState(_ context.Context, documentID string) (*domain.IndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	state.FailedChunkIDs = slices.Clone(state.FailedChunkIDs)
	return &state, nil
}

// DeleteState forgets a document.
func (s *StateStore) DeleteState(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, documentID)
	return nil
}

// ListStates returns every state ordered by document ID.
func (s *StateStore) ListStates(_ context.Context) ([]domain.IndexState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.IndexState, 0, len(s.states))
	for _, state := range s.states {
		state.FailedChunkIDs = slices.Clone(state.FailedChunkIDs)
		result = append(result, state)
	}
	slices.SortFunc(result, func(a, b domain.IndexState) int {
		return strings.Compare(a.DocumentID, b.DocumentID)
	})
	return result, nil
}
