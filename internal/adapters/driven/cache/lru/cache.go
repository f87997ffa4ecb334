// Package lru provides a bounded in-memory embedding cache.
package lru

import (
	"context"
	"fmt"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EmbeddingCache = (*Cache)(nil)

// store is the subset of the golang-lru caches used here.
type store interface {
	Get(key domain.CacheKey) ([]float32, bool)
	Add(key domain.CacheKey, value []float32) bool
	Len() int
	Purge()
}

// Cache holds up to size vectors, evicting the least recently used.
// With a positive TTL entries also expire after ttl.
type Cache struct {
	entries store
}

// New creates a cache of the given size. ttl <= 0 disables expiry.
func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: cache size must be positive", domain.ErrInvalidConfiguration)
	}
	if ttl > 0 {
		return &Cache{entries: expirable.NewLRU[domain.CacheKey, []float32](size, nil, ttl)}, nil
	}
	c, err := lru.New[domain.CacheKey, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	return &Cache{entries: c}, nil
}

// Get returns a copy of the cached vector.
func (c *Cache) Get(_ context.Context, key domain.CacheKey) ([]float32, bool, error) {
	v, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

// Put stores a copy of vector.
func (c *Cache) Put(_ context.Context, key domain.CacheKey, vector []float32) error {
	c.entries.Add(key, slices.Clone(vector))
	return nil
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}
