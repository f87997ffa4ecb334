// Package connectors holds the document sources the retrieval pipeline
// indexes. Each source implements driven.Workspace: it lists document IDs,
// returns documents with a content revision, and reports changes.
//
// The filesystem connector is the only source wired by internal/app.
package connectors
