package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Embedder defaults.
const (
	// DefaultRetryAfter is the wait before retrying a rate-limited batch
	// whose error carries no hint.
	DefaultRetryAfter = time.Second

	// DefaultMaxRetryAfter caps the provider's retry-after hint.
	DefaultMaxRetryAfter = 30 * time.Second
)

// EmbedderStats counts embedder activity since construction.
type EmbedderStats struct {
	CacheHits     int64
	CacheMisses   int64
	ProviderCalls int64
	Failures      int64
}

// Embedder turns chunks into embeddings through the registry's embedding
// model, consulting the cache first.
type Embedder struct {
	registry driving.ModelRegistry
	cache    driven.EmbeddingCache

	model         string
	batchSize     int
	useCase       domain.EmbeddingUseCase
	queryUseCase  domain.EmbeddingUseCase
	truncation    domain.TruncationPolicy
	maxRetryAfter time.Duration

	// sem bounds in-flight provider calls across every caller.
	sem *semaphore.Weighted

	// wait sleeps between a rate-limited attempt and its retry.
	wait func(ctx context.Context, d time.Duration) error

	hits     atomic.Int64
	misses   atomic.Int64
	calls    atomic.Int64
	failures atomic.Int64
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*embedderConfig)

type embedderConfig struct {
	model         string
	concurrency   int
	batchSize     int
	useCase       domain.EmbeddingUseCase
	queryUseCase  domain.EmbeddingUseCase
	truncation    domain.TruncationPolicy
	maxRetryAfter time.Duration
}

// WithEmbeddingModel selects the model by name. Empty selects the first
// registered embedding model.
func WithEmbeddingModel(name string) EmbedderOption {
	return func(c *embedderConfig) {
		c.model = name
	}
}

// WithConcurrency bounds the number of concurrent provider calls.
func WithConcurrency(n int) EmbedderOption {
	return func(c *embedderConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchSize caps inputs per provider call below the model's own limit.
func WithBatchSize(n int) EmbedderOption {
	return func(c *embedderConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithUseCase sets the task type for document chunks.
func WithUseCase(u domain.EmbeddingUseCase) EmbedderOption {
	return func(c *embedderConfig) {
		if u != "" {
			c.useCase = u
		}
	}
}

// WithQueryUseCase sets the task type for query text.
func WithQueryUseCase(u domain.EmbeddingUseCase) EmbedderOption {
	return func(c *embedderConfig) {
		if u != "" {
			c.queryUseCase = u
		}
	}
}

// WithTruncation sets the policy for inputs longer than the model context.
func WithTruncation(p domain.TruncationPolicy) EmbedderOption {
	return func(c *embedderConfig) {
		if p != "" {
			c.truncation = p
		}
	}
}

// WithMaxRetryAfter caps how long a rate-limited batch waits before its retry.
func WithMaxRetryAfter(d time.Duration) EmbedderOption {
	return func(c *embedderConfig) {
		if d > 0 {
			c.maxRetryAfter = d
		}
	}
}

// NewEmbedder creates an embedder. The cache may be nil.
func NewEmbedder(registry driving.ModelRegistry, cache driven.EmbeddingCache, opts ...EmbedderOption) *Embedder {
	cfg := embedderConfig{
		concurrency:   domain.DefaultConcurrency,
		useCase:       domain.UseCaseRetrievalDocument,
		queryUseCase:  domain.UseCaseRetrievalQuery,
		truncation:    domain.TruncateEnd,
		maxRetryAfter: DefaultMaxRetryAfter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Embedder{
		registry:      registry,
		cache:         cache,
		model:         cfg.model,
		batchSize:     cfg.batchSize,
		useCase:       cfg.useCase,
		queryUseCase:  cfg.queryUseCase,
		truncation:    cfg.truncation,
		maxRetryAfter: cfg.maxRetryAfter,
		sem:           semaphore.NewWeighted(int64(cfg.concurrency)),
		wait:          sleepContext,
	}
}

// Model resolves the configured embedding model.
func (e *Embedder) Model() (driven.EmbeddingModel, error) {
	return e.registry.ResolveEmbedding(e.model)
}

// Stats returns activity counters.
func (e *Embedder) Stats() EmbedderStats {
	return EmbedderStats{
		CacheHits:     e.hits.Load(),
		CacheMisses:   e.misses.Load(),
		ProviderCalls: e.calls.Load(),
		Failures:      e.failures.Load(),
	}
}

// EmbedChunks embeds chunks, returning successes in chunk order.
//
// A batch the provider rejects yields one ChunkFailure per chunk in it and
// does not affect other batches. The error return is reserved for
// conditions that fail the whole call: no embedding model, or a cancelled
// context.
func (e *Embedder) EmbedChunks(
	ctx context.Context, chunks []domain.Chunk,
) ([]domain.Embedding, []domain.ChunkFailure, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	model, err := e.Model()
	if err != nil {
		return nil, nil, err
	}
	desc := model.Descriptor()

	results := make([]*domain.Embedding, len(chunks))
	failed := make([]error, len(chunks))
	keys := make([]domain.CacheKey, len(chunks))

	var pending []int
	for i := range chunks {
		keys[i] = e.key(desc, e.useCase, chunkHash(chunks[i]))
		if vec, ok := e.lookup(ctx, keys[i], desc.Dimensions); ok {
			results[i] = &domain.Embedding{
				ChunkID:     chunks[i].ID,
				Model:       desc.ID(),
				Vector:      vec,
				ContentHash: keys[i].ContentHash,
			}
			continue
		}
		pending = append(pending, i)
	}

	logger.Debug("Embedding %d chunks with %s: %d cached, %d to fetch",
		len(chunks), desc.ID(), len(chunks)-len(pending), len(pending))

	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range e.batches(pending, desc.MaxBatchSize) {
		g.Go(func() error {
			inputs := make([]string, len(batch))
			for j, i := range batch {
				inputs[j] = chunks[i].Content
			}

			vectors, err := e.call(gctx, model, desc, e.useCase, inputs)
			if err != nil {
				if gctx.Err() != nil || domain.IsFatal(err) {
					return err
				}
				logger.Warn("Embedding batch of %d chunks failed: %v", len(batch), err)
				for _, i := range batch {
					failed[i] = err
				}
				return nil
			}

			for j, i := range batch {
				if err := checkVector(desc, vectors[j]); err != nil {
					failed[i] = err
					continue
				}
				results[i] = &domain.Embedding{
					ChunkID:     chunks[i].ID,
					Model:       desc.ID(),
					Vector:      vectors[j],
					ContentHash: keys[i].ContentHash,
				}
				e.store(gctx, keys[i], vectors[j])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	embeddings := make([]domain.Embedding, 0, len(chunks))
	var failures []domain.ChunkFailure
	for i := range chunks {
		switch {
		case results[i] != nil:
			embeddings = append(embeddings, *results[i])
		case failed[i] != nil:
			failures = append(failures, domain.ChunkFailure{ChunkID: chunks[i].ID, Err: failed[i]})
		}
	}
	e.failures.Add(int64(len(failures)))
	return embeddings, failures, nil
}

// EmbedQuery embeds query text through the same cache as chunks.
// Any failure is returned.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model, err := e.Model()
	if err != nil {
		return nil, err
	}
	desc := model.Descriptor()

	key := e.key(desc, e.queryUseCase, domain.ContentHash(text))
	if vec, ok := e.lookup(ctx, key, desc.Dimensions); ok {
		return vec, nil
	}

	vectors, err := e.call(ctx, model, desc, e.queryUseCase, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := checkVector(desc, vectors[0]); err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	e.store(ctx, key, vectors[0])
	return vectors[0], nil
}

// call sends one batch, retrying exactly once after a rate-limit response.
// The returned vectors are aligned with inputs.
func (e *Embedder) call(
	ctx context.Context,
	model driven.EmbeddingModel,
	desc domain.ModelDescriptor,
	useCase domain.EmbeddingUseCase,
	inputs []string,
) ([][]float32, error) {
	req := domain.EmbeddingRequest{
		Model:      desc.Name,
		Inputs:     inputs,
		Truncation: e.truncation,
		UseCase:    useCase,
	}

	resp, err := e.embed(ctx, model, req)
	if err != nil {
		kind, _ := domain.KindOf(err)
		if kind != domain.KindRateLimited {
			return nil, err
		}
		delay := domain.RetryAfter(err)
		if delay <= 0 {
			delay = DefaultRetryAfter
		}
		delay = min(delay, e.maxRetryAfter)
		logger.Debug("Rate limited by %s, retrying in %s", desc.ID(), delay)
		if werr := e.wait(ctx, delay); werr != nil {
			return nil, werr
		}
		if resp, err = e.embed(ctx, model, req); err != nil {
			return nil, err
		}
	}

	if len(resp.Vectors) != len(inputs) {
		return nil, &domain.ProviderError{
			Kind:     domain.KindProviderFailure,
			Provider: desc.Provider,
			Model:    desc.Name,
			Message:  fmt.Sprintf("returned %d vectors for %d inputs", len(resp.Vectors), len(inputs)),
		}
	}
	return resp.Vectors, nil
}

// embed makes one provider call under the concurrency limit.
func (e *Embedder) embed(
	ctx context.Context, model driven.EmbeddingModel, req domain.EmbeddingRequest,
) (*domain.EmbeddingResponse, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	e.calls.Add(1)
	return model.Embed(ctx, req)
}

// batches splits pending indices into groups no larger than the effective
// batch size: the smaller of the model limit and the override.
func (e *Embedder) batches(pending []int, modelLimit int) [][]int {
	size := modelLimit
	if e.batchSize > 0 && (size <= 0 || e.batchSize < size) {
		size = e.batchSize
	}
	if size <= 0 {
		size = len(pending)
	}

	var out [][]int
	for start := 0; start < len(pending); start += size {
		out = append(out, pending[start:min(start+size, len(pending))])
	}
	return out
}

func (e *Embedder) key(desc domain.ModelDescriptor, useCase domain.EmbeddingUseCase, hash string) domain.CacheKey {
	return domain.CacheKey{Model: desc.ID(), UseCase: useCase, ContentHash: hash}
}

// lookup reads the cache. Errors and wrong-sized vectors count as misses.
func (e *Embedder) lookup(ctx context.Context, key domain.CacheKey, dims int) ([]float32, bool) {
	if e.cache == nil {
		e.misses.Add(1)
		return nil, false
	}
	vec, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed: %v", err)
	}
	if err != nil || !ok || len(vec) != dims {
		e.misses.Add(1)
		return nil, false
	}
	e.hits.Add(1)
	return vec, true
}

// store writes the cache. Failures are logged; the embedding is still used.
func (e *Embedder) store(ctx context.Context, key domain.CacheKey, vec []float32) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Put(ctx, key, vec); err != nil {
		logger.Warn("Embedding cache write failed: %v", err)
	}
}

// checkVector rejects vectors whose length differs from the descriptor.
func checkVector(desc domain.ModelDescriptor, vec []float32) error {
	if len(vec) == desc.Dimensions {
		return nil
	}
	return &domain.ProviderError{
		Kind:     domain.KindProviderFailure,
		Provider: desc.Provider,
		Model:    desc.Name,
		Message:  fmt.Sprintf("returned %d dimensions, expected %d", len(vec), desc.Dimensions),
	}
}

func chunkHash(c domain.Chunk) string {
	if c.ContentHash != "" {
		return c.ContentHash
	}
	return domain.ContentHash(c.Content)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
