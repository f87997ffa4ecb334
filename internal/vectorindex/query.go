package vectorindex

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// Query returns up to k live entries matching filter, by descending cosine
// similarity. Equal scores are ordered by insertion, earlier first.
// An empty index yields no results; a vector whose length differs from the
// index dimensions fails with domain.ErrDimensionMismatch.
func (idx *Index) Query(vector []float32, k int, filter domain.QueryFilter) ([]domain.ScoredChunk, error) {
	s := idx.snap.Load()

	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}
	if s.dims != 0 && len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(vector), s.dims)
	}
	if k <= 0 || len(s.log) == s.dead {
		return nil, nil
	}

	var docs map[string]struct{}
	if len(filter.DocumentIDs) > 0 {
		docs = make(map[string]struct{}, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			docs[id] = struct{}{}
		}
	}

	qnorm := magnitude(vector)
	top := make(candidates, 0, min(k, len(s.log)))

	for _, e := range s.log {
		if !s.isLive(e) {
			continue
		}
		if filter.WorkspaceID != "" && e.data.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if docs != nil {
			if _, ok := docs[e.data.DocumentID]; !ok {
				continue
			}
		}

		score := cosine(vector, qnorm, e)
		if filter.MinScore != 0 && score < filter.MinScore {
			continue
		}

		c := candidate{entry: e, score: score}
		if len(top) < k {
			heap.Push(&top, c)
			continue
		}
		if top[0].less(c) {
			top[0] = c
			heap.Fix(&top, 0)
		}
	}

	sort.Slice(top, func(i, j int) bool { return top[j].less(top[i]) })

	results := make([]domain.ScoredChunk, len(top))
	for i, c := range top {
		results[i] = domain.ScoredChunk{
			ChunkID:    c.entry.data.Embedding.ChunkID,
			DocumentID: c.entry.data.DocumentID,
			Score:      c.score,
		}
	}
	return results, nil
}

// cosine scores the query against an entry. Zero-magnitude vectors score 0.
func cosine(q []float32, qnorm float64, e *entry) float64 {
	if qnorm == 0 || e.norm == 0 {
		return 0
	}
	var dot float64
	for i, x := range q {
		dot += float64(x) * float64(e.vector[i])
	}
	return dot / (qnorm * e.norm)
}

type candidate struct {
	entry *entry
	score float64
}

// less reports whether c ranks below o: lower score, or equal score and
// inserted later.
func (c candidate) less(o candidate) bool {
	if c.score != o.score {
		return c.score < o.score
	}
	return c.entry.seq > o.entry.seq
}

// candidates is a min-heap on rank, so the root is the weakest kept hit.
type candidates []candidate

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return h[i].less(h[j]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidates) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
