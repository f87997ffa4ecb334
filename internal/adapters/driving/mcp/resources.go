package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

const uriScheme = "markhor://"

// registerResources registers the resources the configured ports can serve.
func (s *Server) registerResources() {
	if s.ports.Workspace != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "documents",
			Name:        "documents",
			Description: "IDs of every document in the workspace",
			MIMEType:    "application/json",
		}, s.handleDocumentsResource)

		// Document IDs are slash-separated paths, hence reserved expansion.
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "documents/{+documentId}",
			Name:        "document-content",
			Description: "Current text of a workspace document",
			MIMEType:    "text/plain",
		}, s.handleDocumentContentResource)
	}

	if s.ports.Models != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "models",
			Name:        "models",
			Description: "Registered models and their capabilities",
			MIMEType:    "application/json",
		}, s.handleModelsResource)
	}
}

func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	ids, err := s.ports.Workspace.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(req.Params.URI, ids)
}

func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Workspace.GetDocument(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     doc.Content,
		}},
	}, nil
}

// modelInfo is the JSON shape of one registered model.
type modelInfo struct {
	ID            string   `json:"id"`
	Capabilities  []string `json:"capabilities"`
	Dimensions    int      `json:"dimensions,omitempty"`
	ContextLength int      `json:"context_length,omitempty"`
}

func (s *Server) handleModelsResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	descs := s.ports.Models.Descriptors()
	infos := make([]modelInfo, len(descs))
	for i, d := range descs {
		caps := make([]string, len(d.Capabilities))
		for j, c := range d.Capabilities {
			caps[j] = c.String()
		}
		infos[i] = modelInfo{ID: d.ID(), Capabilities: caps, Dimensions: d.Dimensions, ContextLength: d.ContextLength}
	}
	return jsonResult(req.Params.URI, infos)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from markhor://documents/{id}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	return strings.TrimPrefix(uri, prefix)
}
