package driven

// NormalisedText is the indexable text extracted from one file.
type NormalisedText struct {
	// Title is the document title the format declares, if any.
	Title string

	// Content is the extracted plain text.
	Content string

	// Format names the source format (e.g. "html").
	Format string
}

// Normaliser extracts plain text from a structured file format.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Normalise extracts text from the file contents.
	// Returns domain.ErrInvalidInput if the data is not valid for the format.
	Normalise(name string, data []byte) (*NormalisedText, error)
}
