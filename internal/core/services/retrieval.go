package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure RetrievalPipeline implements the interface.
var _ driving.RetrievalService = (*RetrievalPipeline)(nil)

// RetrievalPipeline composes chunking, embedding and the similarity index
// over one workspace.
//
// Operations on the same document are serialised. Queries run against the
// index concurrently with indexing and never see entries of an invalidated
// revision.
type RetrievalPipeline struct {
	workspace driven.Workspace
	chunker   driven.PostProcessorPipeline
	embedder  *Embedder
	index     driven.SimilarityIndex
	chunks    driven.ChunkStore
	states    driven.IndexStateStore

	minScore    float64
	concurrency int
	chunking    string
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*docLock
}

// docLock is a per-document mutex shared by refs waiting or holding callers.
type docLock struct {
	mu   sync.Mutex
	refs int
}

// RetrievalOption configures a RetrievalPipeline.
type RetrievalOption func(*RetrievalPipeline)

// WithMinScore drops query hits scoring below the threshold. Zero disables it.
func WithMinScore(score float64) RetrievalOption {
	return func(p *RetrievalPipeline) {
		p.minScore = score
	}
}

// WithDocumentConcurrency bounds how many documents IndexWorkspace
// processes at once.
func WithDocumentConcurrency(n int) RetrievalOption {
	return func(p *RetrievalPipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithChunkingFingerprint records the chunker settings in each IndexState.
// A stored revision cut under a different fingerprint is re-chunked.
func WithChunkingFingerprint(fingerprint string) RetrievalOption {
	return func(p *RetrievalPipeline) {
		p.chunking = fingerprint
	}
}

// WithClock sets the time source for IndexState.IndexedAt.
func WithClock(now func() time.Time) RetrievalOption {
	return func(p *RetrievalPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewRetrievalPipeline creates a retrieval pipeline.
func NewRetrievalPipeline(
	workspace driven.Workspace,
	chunker driven.PostProcessorPipeline,
	embedder *Embedder,
	index driven.SimilarityIndex,
	chunks driven.ChunkStore,
	states driven.IndexStateStore,
	opts ...RetrievalOption,
) *RetrievalPipeline {
	p := &RetrievalPipeline{
		workspace:   workspace,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		chunks:      chunks,
		states:      states,
		concurrency: domain.DefaultConcurrency,
		now:         time.Now,
		locks:       make(map[string]*docLock),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IndexDocument indexes the current revision of a document.
//
// A revision that is already indexed is skipped, unless some of its chunks
// failed to embed, in which case only those are retried. A new revision
// invalidates the previous one before it is chunked.
func (p *RetrievalPipeline) IndexDocument(ctx context.Context, documentID string) (*domain.IndexReport, error) {
	unlock := p.lock(documentID)
	defer unlock()

	return p.indexLocked(ctx, documentID, false)
}

// IndexWorkspace indexes every document the workspace lists.
//
// Documents that vanish between listing and reading, and indexed documents
// the workspace no longer lists, are removed. A document that fails to
// index is reported and skipped; only fatal configuration errors and
// cancellation abort the run.
func (p *RetrievalPipeline) IndexWorkspace(ctx context.Context) ([]*domain.IndexReport, error) {
	logger.Section("Index Workspace")

	ids, err := p.workspace.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	logger.Debug("Workspace %s lists %d documents", p.workspace.ID(), len(ids))

	reports := make([]*domain.IndexReport, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			report, err := p.IndexDocument(gctx, id)
			switch {
			case err == nil:
				reports[i] = report
			case errors.Is(err, domain.ErrNotFound):
				logger.Warn("Document %s disappeared before indexing", id)
				if err := p.DocumentRemoved(gctx, id); err != nil {
					return fmt.Errorf("remove %s: %w", id, err)
				}
				reports[i] = &domain.IndexReport{DocumentID: id, Removed: true}
			case domain.IsFatal(err) || isCancellation(err) || gctx.Err() != nil:
				return fmt.Errorf("index %s: %w", id, err)
			default:
				logger.Warn("Skipping %s: %v", id, err)
				reports[i] = &domain.IndexReport{DocumentID: id, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	reports = slices.DeleteFunc(reports, func(r *domain.IndexReport) bool { return r == nil })

	removed, err := p.pruneUnlisted(ctx, ids)
	if err != nil {
		return nil, err
	}
	return append(reports, removed...), nil
}

// pruneUnlisted removes every indexed document missing from listed.
func (p *RetrievalPipeline) pruneUnlisted(ctx context.Context, listed []string) ([]*domain.IndexReport, error) {
	states, err := p.states.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list index states: %w", err)
	}

	keep := make(map[string]struct{}, len(listed))
	for _, id := range listed {
		keep[id] = struct{}{}
	}

	var reports []*domain.IndexReport
	for _, st := range states {
		if _, ok := keep[st.DocumentID]; ok {
			continue
		}
		if err := p.DocumentRemoved(ctx, st.DocumentID); err != nil {
			return nil, fmt.Errorf("remove %s: %w", st.DocumentID, err)
		}
		logger.Info("Removed %s: no longer in workspace", st.DocumentID)
		reports = append(reports, &domain.IndexReport{DocumentID: st.DocumentID, Removed: true})
	}
	return reports, nil
}

// Retrieve returns the k chunks most similar to the query, best first.
// Pending chunk failures in scope are retried before the index is queried.
func (p *RetrievalPipeline) Retrieve(
	ctx context.Context, query string, k int, scope domain.RetrievalScope,
) ([]domain.RetrievedChunk, error) {
	logger.Section("Retrieve")
	logger.Debug("Query: %q, k=%d", query, k)

	if k <= 0 || strings.TrimSpace(query) == "" {
		return []domain.RetrievedChunk{}, nil
	}

	if recovered, err := p.RetryFailed(ctx, scope); err != nil {
		return nil, err
	} else if recovered > 0 {
		logger.Info("Recovered %d previously failed chunks", recovered)
	}

	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := p.index.Query(vector, k, scope.Filter(p.minScore))
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	logger.Debug("Index returned %d hits", len(hits))

	results := make([]domain.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := p.chunks.GetChunk(ctx, hit.ChunkID)
		if errors.Is(err, domain.ErrNotFound) {
			logger.Debug("Dropping hit %s: chunk no longer stored", hit.ChunkID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve chunk %s: %w", hit.ChunkID, err)
		}
		results = append(results, domain.RetrievedChunk{Chunk: *chunk, Score: hit.Score})
	}

	n := len(results)
	for i := range results {
		results[i].Rank = i
		results[i].Percentile = float64(n-i) * 100 / float64(n)
	}
	return results, nil
}

// DocumentChanged invalidates the document's entries and re-indexes it.
// A document that no longer exists is treated as removed.
func (p *RetrievalPipeline) DocumentChanged(ctx context.Context, documentID string) (*domain.IndexReport, error) {
	unlock := p.lock(documentID)
	defer unlock()

	invalidated := p.index.Invalidate(documentID)
	logger.Debug("Document %s changed: invalidated %d entries", documentID, invalidated)

	report, err := p.indexLocked(ctx, documentID, true)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.IndexReport{DocumentID: documentID, Invalidated: invalidated}, p.forget(ctx, documentID)
	}
	if err != nil {
		return nil, err
	}
	report.Invalidated += invalidated
	return report, nil
}

// DocumentRemoved invalidates the document's entries and deletes its chunks
// and state.
func (p *RetrievalPipeline) DocumentRemoved(ctx context.Context, documentID string) error {
	unlock := p.lock(documentID)
	defer unlock()

	n := p.index.Invalidate(documentID)
	logger.Debug("Document %s removed: invalidated %d entries", documentID, n)
	return p.forget(ctx, documentID)
}

// RetryFailed re-embeds every chunk awaiting retry within scope and returns
// how many were recovered.
func (p *RetrievalPipeline) RetryFailed(ctx context.Context, scope domain.RetrievalScope) (int, error) {
	if scope.WorkspaceID != "" && scope.WorkspaceID != p.workspace.ID() {
		return 0, nil
	}

	states, err := p.states.ListStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list index states: %w", err)
	}

	recovered := 0
	for _, st := range states {
		if st.Complete() {
			continue
		}
		if len(scope.DocumentIDs) > 0 && !slices.Contains(scope.DocumentIDs, st.DocumentID) {
			continue
		}
		n, err := p.retryDocument(ctx, st.DocumentID)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}
	return recovered, nil
}

// Compact reclaims tombstoned index entries.
func (p *RetrievalPipeline) Compact() int {
	n := p.index.Compact()
	logger.Info("Compacted %d index entries", n)
	return n
}

// Status returns the indexed state of a document.
func (p *RetrievalPipeline) Status(ctx context.Context, documentID string) (*domain.IndexState, error) {
	return p.states.GetState(ctx, documentID)
}

// indexLocked does the work of IndexDocument with the document lock held.
// force re-indexes even when the revision is unchanged.
func (p *RetrievalPipeline) indexLocked(ctx context.Context, documentID string, force bool) (*domain.IndexReport, error) {
	doc, err := p.workspace.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}

	state, err := p.state(ctx, documentID)
	if err != nil {
		return nil, err
	}

	report := &domain.IndexReport{DocumentID: documentID, Revision: doc.Revision}

	sameRevision := state != nil && state.Revision == doc.Revision
	if sameRevision && state.Chunking != p.chunking {
		logger.Debug("Document %s: chunking changed from %q to %q", documentID, state.Chunking, p.chunking)
	}
	if !force && sameRevision && state.Chunking == p.chunking {
		if state.Complete() {
			logger.Debug("Document %s revision %d already indexed", documentID, doc.Revision)
			report.Skipped = true
			report.Chunks = state.ChunkCount
			return report, nil
		}
		failures, recovered, err := p.retryLocked(ctx, state)
		if err != nil {
			return nil, err
		}
		report.Chunks = state.ChunkCount
		report.Embedded = recovered
		report.Failures = failures
		return report, nil
	}

	// Stale entries must be gone before the new revision's chunks exist.
	report.Invalidated = p.index.Invalidate(documentID)

	// Chunks of the same revision cut under other settings are not stale by
	// revision, so drop them outright.
	if sameRevision {
		if err := p.chunks.DeleteChunks(ctx, documentID); err != nil {
			return nil, fmt.Errorf("delete chunks of %s: %w", documentID, err)
		}
	}

	chunks, err := p.chunker.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", documentID, err)
	}
	report.Chunks = len(chunks)

	if err := p.chunks.SaveChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("save chunks of %s: %w", documentID, err)
	}
	if err := p.chunks.DeleteStaleChunks(ctx, documentID, doc.Revision); err != nil {
		return nil, fmt.Errorf("delete stale chunks of %s: %w", documentID, err)
	}

	embeddings, failures, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		p.dropState(ctx, documentID)
		return nil, err
	}
	if err := p.insert(chunks, embeddings); err != nil {
		p.dropState(ctx, documentID)
		return nil, err
	}
	report.Embedded = len(embeddings)
	report.Failures = failures

	next := domain.IndexState{
		DocumentID:     documentID,
		Revision:       doc.Revision,
		ChunkCount:     len(chunks),
		Embedded:       len(embeddings),
		FailedChunkIDs: failedIDs(failures),
		Chunking:       p.chunking,
		IndexedAt:      p.now(),
	}
	if err := p.states.SaveState(ctx, next); err != nil {
		return nil, fmt.Errorf("save index state of %s: %w", documentID, err)
	}

	if len(failures) > 0 {
		logger.Warn("Document %s: %d of %d chunks failed to embed", documentID, len(failures), len(chunks))
	}
	logger.Debug("Indexed %s revision %d: %d chunks, %d embedded", documentID, doc.Revision, len(chunks), len(embeddings))
	return report, nil
}

// retryDocument retries one document's failed chunks under its lock.
func (p *RetrievalPipeline) retryDocument(ctx context.Context, documentID string) (int, error) {
	unlock := p.lock(documentID)
	defer unlock()

	state, err := p.state(ctx, documentID)
	if err != nil || state == nil || state.Complete() {
		return 0, err
	}
	_, recovered, err := p.retryLocked(ctx, state)
	return recovered, err
}

// retryLocked re-embeds the failed chunks of state and saves the result.
// Chunks that are no longer stored, or belong to another revision, are
// dropped from the retry list.
func (p *RetrievalPipeline) retryLocked(
	ctx context.Context, state *domain.IndexState,
) ([]domain.ChunkFailure, int, error) {
	var pending []domain.Chunk
	for _, id := range state.FailedChunkIDs {
		chunk, err := p.chunks.GetChunk(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("load chunk %s: %w", id, err)
		}
		if chunk.Revision == state.Revision {
			pending = append(pending, *chunk)
		}
	}

	logger.Debug("Retrying %d failed chunks of %s", len(pending), state.DocumentID)

	embeddings, failures, err := p.embedder.EmbedChunks(ctx, pending)
	if err != nil {
		return nil, 0, err
	}
	if err := p.insert(pending, embeddings); err != nil {
		return nil, 0, err
	}

	next := *state
	next.Embedded += len(embeddings)
	next.FailedChunkIDs = failedIDs(failures)
	next.IndexedAt = p.now()
	if err := p.states.SaveState(ctx, next); err != nil {
		return nil, 0, fmt.Errorf("save index state of %s: %w", state.DocumentID, err)
	}
	return failures, len(embeddings), nil
}

// insert publishes embeddings for chunks in one batch.
func (p *RetrievalPipeline) insert(chunks []domain.Chunk, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	entries := make([]domain.IndexEntry, 0, len(embeddings))
	for _, e := range embeddings {
		entries = append(entries, domain.NewIndexEntry(byID[e.ChunkID], e))
	}
	if err := p.index.InsertBatch(entries); err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}
	return nil
}

// state returns the stored state of a document, or nil if there is none.
func (p *RetrievalPipeline) state(ctx context.Context, documentID string) (*domain.IndexState, error) {
	st, err := p.states.GetState(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index state of %s: %w", documentID, err)
	}
	return st, nil
}

// dropState forgets a document whose indexing aborted, so the next call
// re-indexes it from scratch.
func (p *RetrievalPipeline) dropState(ctx context.Context, documentID string) {
	if err := p.states.DeleteState(context.WithoutCancel(ctx), documentID); err != nil {
		logger.Warn("Failed to reset index state of %s: %v", documentID, err)
	}
}

// forget removes a document's chunks and state.
func (p *RetrievalPipeline) forget(ctx context.Context, documentID string) error {
	return errors.Join(
		p.chunks.DeleteChunks(ctx, documentID),
		p.states.DeleteState(ctx, documentID),
	)
}

// lock serialises operations on one document. The entry is dropped once
// no caller holds or waits for it.
func (p *RetrievalPipeline) lock(documentID string) func() {
	p.mu.Lock()
	l, ok := p.locks[documentID]
	if !ok {
		l = &docLock{}
		p.locks[documentID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, documentID)
		}
		p.mu.Unlock()
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failedIDs(failures []domain.ChunkFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	ids := make([]string, len(failures))
	for i, f := range failures {
		ids[i] = f.ChunkID
	}
	return ids
}
