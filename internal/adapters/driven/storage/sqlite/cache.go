package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// embeddingCache implements driven.EmbeddingCache over the embedding_cache table.
type embeddingCache struct {
	store *Store
	limit int
}

var _ driven.EmbeddingCache = (*embeddingCache)(nil)

// Get returns the cached vector for key and marks it recently used.
func (c *embeddingCache) Get(ctx context.Context, key domain.CacheKey) ([]float32, bool, error) {
	var blob []byte
	err := c.store.db.QueryRowContext(ctx, `
		UPDATE embedding_cache SET last_used = ?
		WHERE model = ? AND use_case = ? AND content_hash = ?
		RETURNING vector
	`, c.store.tick.Add(1), key.Model, string(key.UseCase), key.ContentHash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading embedding cache: %w", err)
	}
	return bytesToFloat32Slice(blob), true, nil
}

// Put stores vector under key, replacing any previous value, then evicts
// the least recently used vectors beyond the limit.
func (c *embeddingCache) Put(ctx context.Context, key domain.CacheKey, vector []float32) error {
	_, err := c.store.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (model, use_case, content_hash, vector, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model, use_case, content_hash) DO UPDATE SET
			vector = excluded.vector,
			last_used = excluded.last_used,
			created_at = CURRENT_TIMESTAMP
	`, key.Model, string(key.UseCase), key.ContentHash, float32SliceToBytes(vector), c.store.tick.Add(1))
	if err != nil {
		return fmt.Errorf("writing embedding cache: %w", err)
	}
	return c.trim(ctx)
}

// trim deletes every vector older than the limit-th most recent one.
func (c *embeddingCache) trim(ctx context.Context) error {
	if c.limit <= 0 {
		return nil
	}
	_, err := c.store.db.ExecContext(ctx, `
		DELETE FROM embedding_cache WHERE last_used <= (
			SELECT last_used FROM embedding_cache
			ORDER BY last_used DESC LIMIT 1 OFFSET ?
		)
	`, c.limit)
	if err != nil {
		return fmt.Errorf("trimming embedding cache: %w", err)
	}
	return nil
}
