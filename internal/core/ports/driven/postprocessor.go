package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// PostProcessor is one stage of chunk production. The first stage of a
// pipeline receives nil chunks and creates them from the document; later
// stages annotate or filter what they are given.
type PostProcessor interface {
	// Name identifies the stage in configuration and logs.
	Name() string

	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a document into its final chunks.
// The retrieval pipeline calls it once per document revision.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
