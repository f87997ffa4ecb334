package lru

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

func key(hash string) domain.CacheKey {
	return domain.CacheKey{Model: "ollama/nomic-embed-text", UseCase: domain.UseCaseRetrievalDocument, ContentHash: hash}
}

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestCache_PutGet(t *testing.T) {
	c, err := New(4, 0)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, key("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key("a"), []float32{1, 2}))
	v, ok, err := c.Get(ctx, key("a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestCache_DoesNotShareSlices(t *testing.T) {
	c, err := New(4, 0)
	require.NoError(t, err)
	ctx := context.Background()

	in := []float32{1, 2}
	require.NoError(t, c.Put(ctx, key("a"), in))
	in[0] = 99

	out, _, _ := c.Get(ctx, key("a"))
	assert.Equal(t, float32(1), out[0])
	out[1] = 99

	again, _, _ := c.Get(ctx, key("a"))
	assert.Equal(t, []float32{1, 2}, again)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2, 0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key("a"), []float32{1}))
	require.NoError(t, c.Put(ctx, key("b"), []float32{2}))
	_, _, _ = c.Get(ctx, key("a"))
	require.NoError(t, c.Put(ctx, key("c"), []float32{3}))

	_, ok, _ := c.Get(ctx, key("b"))
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get(ctx, key("a"))
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_TTL(t *testing.T) {
	c, err := New(4, 20*time.Millisecond)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, key("a"), []float32{1}))
	_, ok, _ := c.Get(ctx, key("a"))
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, key("a"))
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCache_Purge(t *testing.T) {
	c, err := New(4, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put(context.Background(), key("a"), []float32{1}))

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c, err := New(16, 0)
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k := key(string(rune('a' + i)))
			for range 100 {
				_ = c.Put(ctx, k, []float32{float32(i)})
				v, ok, _ := c.Get(ctx, k)
				if ok {
					assert.Equal(t, float32(i), v[0])
				}
			}
		}()
	}
	wg.Wait()
}
