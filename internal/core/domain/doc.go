// Package domain defines the core business entities for Markhor.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A workspace document as seen by the retrieval core
//   - Chunk: A token-bounded segment of a document
//   - Embedding: A vector produced for a chunk by one embedding model
//   - IndexEntry: An embedding stored in the similarity index
//   - ModelDescriptor: What a configured model can do
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
