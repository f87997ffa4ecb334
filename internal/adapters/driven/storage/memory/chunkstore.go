package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure ChunkStore implements the interface.
var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore is an in-memory implementation of driven.ChunkStore.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]domain.Chunk
	byDoc  map[string]map[string]struct{}
}

// NewChunkStore creates a new in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[string]domain.Chunk),
		byDoc:  make(map[string]map[string]struct{}),
	}
}

// SaveChunks stores chunks, replacing any with the same ID.
func (s *ChunkStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		c.Metadata = maps.Clone(c.Metadata)
		s.chunks[c.ID] = c
		ids, ok := s.byDoc[c.DocumentID]
		if !ok {
			ids = make(map[string]struct{})
			s.byDoc[c.DocumentID] = ids
		}
		ids[c.ID] = struct{}{}
	}
	return nil
}

// GetChunk retrieves a chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c.Metadata = maps.Clone(c.Metadata)
	return &c, nil
}

// GetChunks retrieves the chunks of a document ordered by revision, then position.
func (s *ChunkStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Chunk, 0, len(s.byDoc[documentID]))
	for id := range s.byDoc[documentID] {
		c := s.chunks[id]
		c.Metadata = maps.Clone(c.Metadata)
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Chunk) int {
		if a.Revision != b.Revision {
			return cmp.Compare(a.Revision, b.Revision)
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return result, nil
}

// DeleteChunks removes every chunk of a document.
func (s *ChunkStore) DeleteChunks(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byDoc[documentID] {
		delete(s.chunks, id)
	}
	delete(s.byDoc, documentID)
	return nil
}

// DeleteStaleChunks removes chunks of a document from revisions other than keep.
func (s *ChunkStore) DeleteStaleChunks(_ context.Context, documentID string, keep uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byDoc[documentID]
	for id := range ids {
		if s.chunks[id].Revision != keep {
			delete(s.chunks, id)
			delete(ids, id)
		}
	}
	return nil
}

// Len returns the number of stored chunks.
func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
