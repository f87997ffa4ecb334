// Package mcp provides an MCP (Model Context Protocol) server adapter for markhor.
// It lets AI assistants retrieve passages from the local workspace index.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
