// Package chunker splits document text into token-bounded chunks.
//
// Lengths are measured by an external tokenizer and chunk boundaries always
// fall on tokenizer-reported byte offsets, so a chunk never splits a
// multi-byte token.
package chunker

import (
	"context"
	"fmt"
	"iter"
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of tokens per chunk.
const DefaultChunkSize = domain.DefaultChunkTokens

// DefaultChunkOverlap is the default number of tokens shared by consecutive chunks.
const DefaultChunkOverlap = 0

// chunkNamespace scopes the name-based chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("markhor.chunk"))

// Chunker walks a token stream in windows of chunkSize tokens,
// advancing chunkSize-overlap tokens per step.
type Chunker struct {
	tokenizer driven.Tokenizer
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in tokens.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in tokens.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a chunker over the given tokenizer.
// Returns domain.ErrInvalidConfiguration unless 0 <= overlap < size.
func New(tokenizer driven.Tokenizer, opts ...Option) (*Chunker, error) {
	c := &Chunker{
		tokenizer: tokenizer,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	if tokenizer == nil {
		return nil, fmt.Errorf("%w: chunker requires a tokenizer", domain.ErrInvalidConfiguration)
	}
	if c.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", domain.ErrInvalidConfiguration, c.chunkSize)
	}
	if c.overlap < 0 || c.overlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)",
			domain.ErrInvalidConfiguration, c.overlap, c.chunkSize)
	}

	return c, nil
}

// ChunkSize returns the configured window size in tokens.
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured overlap in tokens.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Chunks returns a lazy sequence of the document's chunks.
// Each range over the sequence tokenizes the document afresh, so the
// sequence can be iterated any number of times with identical results.
// A tokenizer failure or cancellation is yielded once as the error value
// and ends the sequence.
func (c *Chunker) Chunks(ctx context.Context, doc *domain.Document) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		if doc == nil || doc.Content == "" {
			return
		}

		tokens, err := c.tokenizer.Tokenize(ctx, doc.Content)
		if err != nil {
			yield(domain.Chunk{}, fmt.Errorf("tokenize %s: %w", doc.ID, err))
			return
		}
		if len(tokens) == 0 {
			return
		}

		step := c.chunkSize - c.overlap
		position := 0
		for first := 0; ; first += step {
			if err := ctx.Err(); err != nil {
				yield(domain.Chunk{}, err)
				return
			}

			last := min(first+c.chunkSize, len(tokens))
			if !yield(c.chunkAt(doc, tokens, first, last, position), nil) {
				return
			}
			if last == len(tokens) {
				return
			}
			position++
		}
	}
}

// Split collects every chunk of the document.
func (c *Chunker) Split(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	for chunk, err := range c.Chunks(ctx, doc) {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// chunkAt builds the chunk covering tokens[first:last].
func (c *Chunker) chunkAt(doc *domain.Document, tokens []domain.Token, first, last, position int) domain.Chunk {
	start := tokens[first].Start
	end := tokens[last-1].End
	text := doc.Content[start:end]

	return domain.Chunk{
		ID:          ChunkID(doc.ID, doc.Revision, start, end),
		DocumentID:  doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Revision:    doc.Revision,
		Position:    position,
		Start:       start,
		End:         end,
		TokenStart:  first,
		TokenEnd:    last,
		Content:     text,
		ContentHash: domain.ContentHash(text),
		Metadata:    make(map[string]any),
	}
}

// ChunkID derives the stable identifier of a chunk from its document,
// revision and byte range.
func ChunkID(documentID string, revision uint64, start, end int) string {
	name := documentID + "\x00" +
		strconv.FormatUint(revision, 10) + "\x00" +
		strconv.Itoa(start) + "\x00" +
		strconv.Itoa(end)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
