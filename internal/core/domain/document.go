package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document is the retrieval core's read-only view of a workspace document.
// The workspace owns the document lifecycle; the core only derives chunk and
// embedding state keyed by (ID, Revision).
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// WorkspaceID links to the workspace that owns this document.
	WorkspaceID string

	// URI is the original location (file path, URL, etc).
	URI string

	// Title is the human-readable title.
	Title string

	// Content is the full plain-text content.
	Content string

	// Revision increases every time the workspace observes a content change.
	Revision uint64

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// UpdatedAt is when the workspace last changed the document.
	UpdatedAt time.Time
}

// ContentHash returns the digest of the document content.
func (d Document) ContentHash() string {
	return ContentHash(d.Content)
}

// Chunk is a bounded text segment derived from a document.
// Chunks are immutable once created and are superseded, not mutated,
// when the parent document changes revision.
type Chunk struct {
	// ID is stable for a given (document, revision, byte range).
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// WorkspaceID is copied from the parent document for scoped queries.
	WorkspaceID string

	// Revision is the document revision the chunk was cut from.
	Revision uint64

	// Position is the ordinal position within the document.
	Position int

	// Start and End are byte offsets into the document content.
	Start int
	End   int

	// TokenStart and TokenEnd are token offsets into the tokenized content.
	TokenStart int
	TokenEnd   int

	// Content is the text slice Content[Start:End] of the parent document.
	Content string

	// ContentHash is the digest of Content.
	ContentHash string

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// TokenCount returns the number of tokens the chunk covers.
func (c Chunk) TokenCount() int {
	return c.TokenEnd - c.TokenStart
}

// Token is one tokenizer unit mapped back to byte offsets of the source text.
type Token struct {
	// Text is the source text covered by the token.
	Text string

	// Start is the inclusive byte offset.
	Start int

	// End is the exclusive byte offset.
	End int
}

// ContentHash returns the hex SHA-256 digest of text.
// It is the cache and staleness key for chunk embeddings.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
