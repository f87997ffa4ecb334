// Package metadata annotates chunks with provenance from their document.
package metadata

import (
	"context"
	"maps"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Metadata keys set on every chunk.
const (
	KeyTitle = "title"
	KeyURI   = "uri"
)

var _ driven.PostProcessor = (*Processor)(nil)

// Processor copies document title, URI and selected metadata keys onto chunks.
// Input chunks are not modified; each output chunk gets a fresh metadata map.
type Processor struct {
	keys []string
}

// New creates a processor copying the given document metadata keys.
func New(keys ...string) *Processor {
	return &Processor{keys: keys}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "metadata"
}

// Process annotates chunks.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]any, len(chunk.Metadata)+len(p.keys)+2)
		maps.Copy(meta, chunk.Metadata)
		if doc.Title != "" {
			meta[KeyTitle] = doc.Title
		}
		if doc.URI != "" {
			meta[KeyURI] = doc.URI
		}
		for _, key := range p.keys {
			if v, ok := doc.Metadata[key]; ok {
				meta[key] = v
			}
		}
		chunk.Metadata = meta
		out[i] = chunk
	}
	return out, nil
}
