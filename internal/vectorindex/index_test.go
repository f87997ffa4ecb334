package vectorindex

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

const testModel = "stub/embed"

func entryFor(doc, chunk string, vec ...float32) domain.IndexEntry {
	return domain.IndexEntry{
		Embedding:   domain.Embedding{ChunkID: chunk, Model: testModel, Vector: vec},
		DocumentID:  doc,
		WorkspaceID: "ws",
	}
}

func ids(results []domain.ScoredChunk) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestQuery_RanksByCosine(t *testing.T) {
	idx := New()
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		entryFor("d1", "east", 1, 0),
		entryFor("d1", "north", 0, 1),
		entryFor("d2", "northeast", 1, 1),
		entryFor("d2", "west", -1, 0),
	}))

	results, err := idx.Query([]float32{1, 0.1}, 3, domain.QueryFilter{})
	require.NoError(t, err)

	assert.Equal(t, []string{"east", "northeast", "north"}, ids(results))
	assert.InDelta(t, 0.995, results[0].Score, 0.001)
	assert.Equal(t, "d1", results[0].DocumentID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQuery_TiesBrokenByInsertionOrder(t *testing.T) {
	idx := New()
	for i := range 6 {
		require.NoError(t, idx.Insert(entryFor("d", fmt.Sprintf("c%d", i), 2, 2)))
	}

	first, err := idx.Query([]float32{1, 1}, 4, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c2", "c3"}, ids(first))

	for range 5 {
		again, err := idx.Query([]float32{1, 1}, 4, domain.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQuery_EmptyIndex(t *testing.T) {
	results, err := New().Query([]float32{1, 2, 3}, 5, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_KLargerThanIndex(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(entryFor("d", "a", 1, 0)))
	results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = idx.Query([]float32{1, 0}, 0, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	idx := New()
	big := make([]float32, 768)
	big[0] = 1
	require.NoError(t, idx.Insert(entryFor("d", "c", big...)))

	_, err := idx.Query(make([]float32, 384), 3, domain.QueryFilter{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestQuery_ConfiguredDimensionsCheckedWhenEmpty(t *testing.T) {
	idx := New(WithDimensions(768))
	_, err := idx.Query(make([]float32, 384), 3, domain.QueryFilter{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = idx.Query(nil, 3, domain.QueryFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQuery_ZeroMagnitudeScoresZero(t *testing.T) {
	idx := New()
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		entryFor("d", "zero", 0, 0),
		entryFor("d", "unit", 1, 0),
	}))

	results, err := idx.Query([]float32{1, 0}, 2, domain.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "zero", results[1].ChunkID)
	assert.Zero(t, results[1].Score)

	results, err = idx.Query([]float32{0, 0}, 2, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"zero", "unit"}, ids(results))
}

func TestQuery_Filters(t *testing.T) {
	idx := New()
	other := entryFor("d3", "other-ws", 1, 0)
	other.WorkspaceID = "elsewhere"
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		entryFor("d1", "a", 1, 0),
		entryFor("d2", "b", 1, 0.2),
		entryFor("d2", "c", 0, 1),
		other,
	}))

	t.Run("documents", func(t *testing.T) {
		results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{DocumentIDs: []string{"d2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(results))
	})

	t.Run("workspace", func(t *testing.T) {
		results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{WorkspaceID: "elsewhere"})
		require.NoError(t, err)
		assert.Equal(t, []string{"other-ws"}, ids(results))
	})

	t.Run("min score", func(t *testing.T) {
		results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{WorkspaceID: "ws", MinScore: 0.6})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(results))
	})
}

func TestInsert_Validation(t *testing.T) {
	idx := New(WithModel(testModel))
	require.NoError(t, idx.Insert(entryFor("d", "a", 1, 2, 3)))

	err := idx.Insert(entryFor("d", "b", 1, 2))
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	wrongModel := entryFor("d", "c", 1, 2, 3)
	wrongModel.Embedding.Model = "other/model"
	assert.ErrorIs(t, idx.Insert(wrongModel), domain.ErrModelMismatch)

	assert.ErrorIs(t, idx.Insert(entryFor("d", "", 1, 2, 3)), domain.ErrInvalidInput)
	assert.ErrorIs(t, idx.Insert(entryFor("d", "e")), domain.ErrInvalidInput)

	assert.Equal(t, 1, idx.Len())
}

func TestInsertBatch_AllOrNothing(t *testing.T) {
	idx := New()
	err := idx.InsertBatch([]domain.IndexEntry{
		entryFor("d", "a", 1, 0),
		entryFor("d", "b", 1, 0, 0),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Zero(t, idx.Len())
	assert.Zero(t, idx.Stats().Dimensions)

	assert.NoError(t, idx.InsertBatch(nil))
}

func TestInsert_CopiesVector(t *testing.T) {
	idx := New()
	vec := []float32{1, 0}
	require.NoError(t, idx.Insert(entryFor("d", "a", vec...)))
	require.NoError(t, idx.Insert(domain.IndexEntry{
		Embedding:  domain.Embedding{ChunkID: "b", Model: testModel, Vector: vec},
		DocumentID: "d",
	}))

	vec[0], vec[1] = 0, 1

	results, err := idx.Query([]float32{1, 0}, 2, domain.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 1.0, results[1].Score, 1e-9)
}

func TestInvalidate_HidesBeforeCompaction(t *testing.T) {
	idx := New()
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		entryFor("d1", "a", 1, 0),
		entryFor("d1", "b", 1, 0.1),
		entryFor("d2", "c", 1, 0.2),
	}))

	assert.Equal(t, 2, idx.Invalidate("d1"))
	assert.Zero(t, idx.Invalidate("d1"))
	assert.Zero(t, idx.Invalidate("missing"))

	results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(results))

	scoped, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{DocumentIDs: []string{"d1"}})
	require.NoError(t, err)
	assert.Empty(t, scoped)

	stats := idx.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 2, stats.Tombstoned)
	assert.Equal(t, 0, idx.DocumentLen("d1"))
}

func TestInvalidate_ThenReinsert(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(entryFor("d", "rev1", 1, 0)))
	idx.Invalidate("d")
	require.NoError(t, idx.Insert(entryFor("d", "rev2", 1, 0)))

	results, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rev2"}, ids(results))
	assert.Equal(t, 1, idx.DocumentLen("d"))
}

func TestCompact(t *testing.T) {
	idx := New()
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		entryFor("d1", "a", 1, 0),
		entryFor("d2", "b", 1, 0),
		entryFor("d1", "c", 1, 0),
		entryFor("d3", "d", 1, 0),
	}))
	assert.Zero(t, idx.Compact())

	idx.Invalidate("d1")
	before, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Compact())
	assert.Zero(t, idx.Compact())

	after, err := idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"b", "d"}, ids(after))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.Live)
	assert.Zero(t, stats.Tombstoned)
	assert.Equal(t, 2, stats.Dimensions)
	assert.Equal(t, testModel, stats.Model)

	// order survives compaction and new inserts rank after older equals
	require.NoError(t, idx.Insert(entryFor("d1", "e", 1, 0)))
	after, err = idx.Query([]float32{1, 0}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "e"}, ids(after))
}

func TestIndex_ConcurrentReadersAndWriters(t *testing.T) {
	idx := New(WithDimensions(4))
	const writers, perWriter = 4, 200

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", w)
			for i := range perWriter {
				_ = idx.Insert(entryFor(doc, fmt.Sprintf("%s-%d", doc, i), 1, float32(i), 0, 1))
				if i%50 == 49 {
					idx.Invalidate(doc)
				}
				if i%75 == 74 {
					idx.Compact()
				}
			}
		}()
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := idx.Query([]float32{1, 1, 0, 1}, 5, domain.QueryFilter{})
				if !assert.NoError(t, err) {
					return
				}
				for i := 1; i < len(results); i++ {
					assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	// each writer's last invalidation was at i=199, dropping everything
	assert.Zero(t, idx.Len())
	idx.Compact()
	assert.Zero(t, idx.Stats().Tombstoned)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	idx := New()
	e := entryFor("d1", "a", 1, 0)
	e.Revision = 4
	e.Embedding.ContentHash = "hash-a"
	require.NoError(t, idx.InsertBatch([]domain.IndexEntry{
		e,
		entryFor("d2", "b", 0.5, 0.5),
		entryFor("d3", "gone", 1, 1),
	}))
	idx.Invalidate("d3")

	var buf bytes.Buffer
	require.NoError(t, idx.WriteSnapshot(&buf))

	restored := New()
	require.NoError(t, restored.ReadSnapshot(&buf))

	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, idx.Stats().Dimensions, restored.Stats().Dimensions)
	assert.Equal(t, testModel, restored.Stats().Model)

	want, err := idx.Query([]float32{1, 0.2}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	got, err := restored.Query([]float32{1, 0.2}, 10, domain.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.ErrorIs(t, restored.Insert(entryFor("d4", "x", 1, 2, 3)), domain.ErrDimensionMismatch)
}

func TestSnapshot_Corrupt(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Insert(entryFor("d", "a", 1, 0)))

	var buf bytes.Buffer
	require.NoError(t, idx.WriteSnapshot(&buf))
	data := buf.Bytes()

	assert.ErrorIs(t, New().ReadSnapshot(bytes.NewReader([]byte("nope"))), ErrCorruptSnapshot)
	assert.ErrorIs(t, New().ReadSnapshot(bytes.NewReader(data[:len(data)-3])), ErrCorruptSnapshot)

	bad := bytes.Clone(data)
	bad[0] = 'X'
	target := New()
	require.NoError(t, target.Insert(entryFor("d", "keep", 1, 0)))
	assert.ErrorIs(t, target.ReadSnapshot(bytes.NewReader(bad)), ErrCorruptSnapshot)
	assert.Equal(t, 1, target.Len())
}
