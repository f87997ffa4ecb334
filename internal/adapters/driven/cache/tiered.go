// Package cache composes embedding cache tiers.
package cache

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure Tiered implements the interface.
var _ driven.EmbeddingCache = (*Tiered)(nil)

// Tiered reads through a fast cache to a persistent one and writes to both.
// Persistent tier failures degrade to misses; they are logged, never returned.
type Tiered struct {
	front driven.EmbeddingCache
	back  driven.EmbeddingCache
}

// NewTiered layers front over back. A nil back yields front alone.
func NewTiered(front, back driven.EmbeddingCache) driven.EmbeddingCache {
	if back == nil {
		return front
	}
	return &Tiered{front: front, back: back}
}

// Get checks front then back, promoting back hits into front.
func (t *Tiered) Get(ctx context.Context, key domain.CacheKey) ([]float32, bool, error) {
	if v, ok, err := t.front.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	v, ok, err := t.back.Get(ctx, key)
	if err != nil {
		logger.Warn("persistent cache read %s: %v", key, err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if err := t.front.Put(ctx, key, v); err != nil {
		logger.Debug("promote %s: %v", key, err)
	}
	return v, true, nil
}

// Put writes front then back.
func (t *Tiered) Put(ctx context.Context, key domain.CacheKey, vector []float32) error {
	if err := t.front.Put(ctx, key, vector); err != nil {
		return err
	}
	if err := t.back.Put(ctx, key, vector); err != nil {
		logger.Warn("persistent cache write %s: %v", key, err)
	}
	return nil
}
