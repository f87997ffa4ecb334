// Package words provides a deterministic whitespace tokenizer.
//
// A token is a maximal run of non-space characters, so trailing
// punctuation stays attached to the word before it ("fox." is one token).
// It needs no model files and is the default for offline use.
package words

import (
	"context"
	"regexp"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Name is the tokenizer name used in configuration.
const Name = string(domain.TokenizerWords)

var _ driven.Tokenizer = (*Tokenizer)(nil)

var tokenPattern = regexp.MustCompile(`\S+`)

// Tokenizer splits text on ASCII whitespace.
type Tokenizer struct{}

// New creates a whitespace tokenizer.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Name returns the tokenizer name.
func (t *Tokenizer) Name() string {
	return Name
}

// Tokenize returns whitespace-separated tokens with byte offsets.
func (t *Tokenizer) Tokenize(ctx context.Context, text string) ([]domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spans := tokenPattern.FindAllStringIndex(text, -1)
	tokens := make([]domain.Token, len(spans))
	for i, span := range spans {
		tokens[i] = domain.Token{Text: text[span[0]:span[1]], Start: span[0], End: span[1]}
	}
	return tokens, nil
}
