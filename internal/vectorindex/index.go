// Package vectorindex provides an in-process similarity index over chunk
// embeddings.
//
// The index is a sequence of immutable snapshots. Writers serialise on a
// mutex, build the next snapshot and publish it with an atomic pointer
// swap; readers load the current snapshot and scan it without locking, so a
// query never blocks on, or observes a partial, insert, invalidation or
// compaction.
//
// Entries live in an append-only log ordered by insertion sequence.
// Invalidation does not touch the log: it records a per-document sequence
// watermark, and every entry of that document at or below the watermark is
// treated as a tombstone. Compaction rebuilds the log without tombstones.
package vectorindex

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

var _ driven.SimilarityIndex = (*Index)(nil)

// entry is one published index entry. Never mutated after publication.
type entry struct {
	seq    uint64
	data   domain.IndexEntry
	vector []float32
	norm   float64
}

// snapshot is one immutable view of the index.
type snapshot struct {
	// log holds entries in insertion order. Writers only ever append past
	// the current length, which no published snapshot can see.
	log []*entry

	// tombstones maps document ID to the highest tombstoned sequence.
	tombstones map[string]uint64

	// dead is the number of tombstoned entries in log.
	dead int

	dims    int
	model   string
	nextSeq uint64
}

func (s *snapshot) isLive(e *entry) bool {
	mark, ok := s.tombstones[e.data.DocumentID]
	return !ok || e.seq > mark
}

// Index is a concurrent cosine-similarity index.
type Index struct {
	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[snapshot]
}

// Option configures an Index.
type Option func(*snapshot)

// WithDimensions fixes the vector length up front.
// Otherwise it is fixed by the first insert.
func WithDimensions(n int) Option {
	return func(s *snapshot) {
		if n > 0 {
			s.dims = n
		}
	}
}

// WithModel fixes the model identifier every entry must carry.
// Otherwise it is fixed by the first insert.
func WithModel(model string) Option {
	return func(s *snapshot) {
		s.model = model
	}
}

// New creates an empty index.
func New(opts ...Option) *Index {
	s := &snapshot{tombstones: map[string]uint64{}, nextSeq: 1}
	for _, opt := range opts {
		opt(s)
	}
	idx := &Index{}
	idx.snap.Store(s)
	return idx
}

// Insert adds one entry. The vector is copied.
func (idx *Index) Insert(e domain.IndexEntry) error {
	return idx.InsertBatch([]domain.IndexEntry{e})
}

// InsertBatch adds entries in order. Either every entry is published or,
// on a validation error, none is.
func (idx *Index) InsertBatch(entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	dims, model := cur.dims, cur.model

	for i := range entries {
		e := &entries[i].Embedding
		if e.ChunkID == "" {
			return fmt.Errorf("%w: entry %d has no chunk id", domain.ErrInvalidInput, i)
		}
		if len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry %s has an empty vector", domain.ErrInvalidInput, e.ChunkID)
		}
		if dims == 0 {
			dims = len(e.Vector)
		}
		if len(e.Vector) != dims {
			return fmt.Errorf("%w: entry %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, e.ChunkID, len(e.Vector), dims)
		}
		if model == "" {
			model = e.Model
		}
		if e.Model != model {
			return fmt.Errorf("%w: entry %s from %q, index holds %q",
				domain.ErrModelMismatch, e.ChunkID, e.Model, model)
		}
	}

	next := &snapshot{
		log:        cur.log,
		tombstones: cur.tombstones,
		dead:       cur.dead,
		dims:       dims,
		model:      model,
		nextSeq:    cur.nextSeq,
	}
	for _, in := range entries {
		vector := slices.Clone(in.Embedding.Vector)
		data := in
		data.Embedding.Vector = vector
		if in.Embedding.Model == "" {
			data.Embedding.Model = model
		}
		next.log = append(next.log, &entry{
			seq:    next.nextSeq,
			data:   data,
			vector: vector,
			norm:   magnitude(vector),
		})
		next.nextSeq++
	}

	idx.snap.Store(next)
	return nil
}

// Invalidate tombstones every live entry of the document and returns how many.
// Entries inserted for the document afterwards are live.
func (idx *Index) Invalidate(documentID string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	count := 0
	for _, e := range cur.log {
		if e.data.DocumentID == documentID && cur.isLive(e) {
			count++
		}
	}
	if count == 0 {
		return 0
	}

	tombstones := make(map[string]uint64, len(cur.tombstones)+1)
	for doc, mark := range cur.tombstones {
		tombstones[doc] = mark
	}
	tombstones[documentID] = cur.nextSeq - 1

	next := *cur
	next.tombstones = tombstones
	next.dead = cur.dead + count
	idx.snap.Store(&next)
	return count
}

// Compact rebuilds the log without tombstoned entries and returns how many
// were reclaimed. Queries already running finish against the old snapshot.
func (idx *Index) Compact() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	if cur.dead == 0 {
		return 0
	}

	live := make([]*entry, 0, len(cur.log)-cur.dead)
	for _, e := range cur.log {
		if cur.isLive(e) {
			live = append(live, e)
		}
	}

	idx.snap.Store(&snapshot{
		log:        live,
		tombstones: map[string]uint64{},
		dims:       cur.dims,
		model:      cur.model,
		nextSeq:    cur.nextSeq,
	})
	return len(cur.log) - len(live)
}

// Len returns the number of live entries.
func (idx *Index) Len() int {
	s := idx.snap.Load()
	return len(s.log) - s.dead
}

// DocumentLen returns the number of live entries of one document.
func (idx *Index) DocumentLen(documentID string) int {
	s := idx.snap.Load()
	n := 0
	for _, e := range s.log {
		if e.data.DocumentID == documentID && s.isLive(e) {
			n++
		}
	}
	return n
}

// IndexStats describes the current snapshot.
type IndexStats struct {
	Live       int
	Tombstoned int
	Dimensions int
	Model      string
}

// Stats returns counts for the current snapshot.
func (idx *Index) Stats() IndexStats {
	s := idx.snap.Load()
	return IndexStats{
		Live:       len(s.log) - s.dead,
		Tombstoned: s.dead,
		Dimensions: s.dims,
		Model:      s.model,
	}
}

// magnitude returns the Euclidean norm of v.
func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
