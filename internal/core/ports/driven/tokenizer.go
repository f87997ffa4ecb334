package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// Tokenizer splits text into tokens mapped back to byte offsets.
// Offsets must be strictly increasing, lie on UTF-8 boundaries of the
// input and never overlap.
type Tokenizer interface {
	// Name identifies the encoding (e.g. "cl100k_base").
	Name() string

	// Tokenize returns the ordered token sequence for text.
	Tokenize(ctx context.Context, text string) ([]domain.Token, error)
}
