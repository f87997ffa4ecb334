package chunker

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// Processor exposes a Chunker as the first stage of a post-processor pipeline.
type Processor struct {
	chunker *Chunker
}

// NewProcessor wraps a chunker.
func NewProcessor(c *Chunker) *Processor {
	return &Processor{chunker: c}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Chunker returns the wrapped chunker.
func (p *Processor) Chunker() *Chunker {
	return p.chunker
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	return p.chunker.Split(ctx, doc)
}
