package mcp

import (
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
)

// Ports aggregates the interfaces the MCP server drives.
type Ports struct {
	// Retrieval answers nearest-chunk queries (required).
	Retrieval driving.RetrievalService

	// Answer enables the ask tool when set.
	Answer driving.AnswerService

	// Workspace enables the document resources when set.
	Workspace driven.Workspace

	// Models enables the models resource when set.
	Models driving.ModelRegistry
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}
