package domain

import "time"

// Embedding is the vector one model produced for one chunk.
// It is valid only while ContentHash matches the chunk it was computed from.
type Embedding struct {
	// ChunkID is the chunk the vector belongs to.
	ChunkID string

	// Model is the fully-qualified "provider/name" identifier of the producing model.
	Model string

	// Vector is the embedding values.
	Vector []float32

	// ContentHash is the digest of the chunk text the vector was produced from.
	ContentHash string
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// IsStaleFor reports whether the embedding no longer describes the chunk.
func (e Embedding) IsStaleFor(c Chunk) bool {
	return e.ChunkID != c.ID || e.ContentHash != c.ContentHash
}

// IndexEntry is an embedding stored in the similarity index with enough of
// its chunk to filter and cascade-invalidate by document.
type IndexEntry struct {
	// Embedding is the stored vector and its provenance.
	Embedding Embedding

	// DocumentID is the parent document of the chunk.
	DocumentID string

	// WorkspaceID is the workspace of the parent document.
	WorkspaceID string

	// Revision is the document revision the chunk was cut from.
	Revision uint64
}

// NewIndexEntry builds an entry for an embedding of chunk c.
func NewIndexEntry(c Chunk, e Embedding) IndexEntry {
	return IndexEntry{
		Embedding:   e,
		DocumentID:  c.DocumentID,
		WorkspaceID: c.WorkspaceID,
		Revision:    c.Revision,
	}
}

// QueryFilter restricts a similarity query.
// Zero values mean "no restriction".
type QueryFilter struct {
	// DocumentIDs restricts results to these documents.
	DocumentIDs []string

	// WorkspaceID restricts results to one workspace.
	WorkspaceID string

	// MinScore drops results scoring below this threshold.
	MinScore float64
}

// ScoredChunk is one similarity query hit.
type ScoredChunk struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// DocumentID is the parent document of the chunk.
	DocumentID string

	// Score is the cosine similarity in [-1, 1].
	Score float64
}

// RetrievedChunk is a hit resolved back to chunk content.
type RetrievedChunk struct {
	// Chunk is the matched chunk.
	Chunk Chunk

	// Score is the cosine similarity.
	Score float64

	// Rank is the zero-based position in the result list.
	Rank int

	// Percentile places the hit within the result list (100 = best).
	Percentile float64
}

// RetrievalScope restricts a retrieval to part of the corpus.
type RetrievalScope struct {
	// WorkspaceID restricts to one workspace.
	WorkspaceID string

	// DocumentIDs restricts to these documents.
	DocumentIDs []string
}

// Filter converts the scope into an index filter with a score floor.
func (s RetrievalScope) Filter(minScore float64) QueryFilter {
	return QueryFilter{
		DocumentIDs: s.DocumentIDs,
		WorkspaceID: s.WorkspaceID,
		MinScore:    minScore,
	}
}

// CacheKey identifies a cached embedding.
type CacheKey struct {
	// Model is the fully-qualified model identifier.
	Model string

	// UseCase is the embedding task the vector was produced for.
	UseCase EmbeddingUseCase

	// ContentHash is the digest of the embedded text.
	ContentHash string
}

// String returns a flat form of the key for storage backends.
func (k CacheKey) String() string {
	return "embed:" + k.Model + ":" + string(k.UseCase) + ":" + k.ContentHash
}

// ChunkFailure records why one chunk could not be embedded.
type ChunkFailure struct {
	// ChunkID is the chunk that failed.
	ChunkID string

	// Err is the provider failure.
	Err error
}

// IndexState summarises a document's derived state in the pipeline.
type IndexState struct {
	// DocumentID is the document.
	DocumentID string

	// Revision is the last revision indexed.
	Revision uint64

	// ChunkCount is the number of chunks cut from that revision.
	ChunkCount int

	// Embedded is how many chunks are live in the index.
	Embedded int

	// FailedChunkIDs are chunks awaiting retry.
	FailedChunkIDs []string

	// Chunking identifies the chunker settings that cut the revision.
	// Chunks cut under other settings are re-cut.
	Chunking string

	// IndexedAt is when the revision was last processed.
	IndexedAt time.Time
}

// Complete returns true when no chunk is awaiting retry.
func (s IndexState) Complete() bool {
	return len(s.FailedChunkIDs) == 0
}

// IndexReport describes the outcome of one IndexDocument call.
type IndexReport struct {
	// DocumentID is the document processed.
	DocumentID string

	// Revision is the revision processed.
	Revision uint64

	// Skipped is true when the revision was already fully indexed.
	Skipped bool

	// Invalidated is the number of entries tombstoned for a previous revision.
	Invalidated int

	// Chunks is the number of chunks cut.
	Chunks int

	// Embedded is the number of entries inserted.
	Embedded int

	// Failures lists chunks that could not be embedded.
	Failures []ChunkFailure

	// Removed is true when the document left the workspace and its derived
	// state was deleted.
	Removed bool

	// Err is set when the document could not be indexed and was skipped.
	Err error
}
