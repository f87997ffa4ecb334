// Package tiktoken measures text in cl100k_base BPE tokens.
//
// The encoding is loaded by github.com/pkoukk/tiktoken-go, which downloads
// the BPE ranks on first use and caches them under TIKTOKEN_CACHE_DIR.
package tiktoken

import (
	"context"
	"fmt"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Name is the encoding name used in configuration.
const Name = string(domain.TokenizerCL100K)

var _ driven.Tokenizer = (*Tokenizer)(nil)

// encoder is the subset of *tiktoken.Tiktoken the adapter uses.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Tokenizer maps BPE tokens back to byte offsets of the source text.
// Byte-level tokens that end inside a UTF-8 sequence are merged with their
// successors so every reported boundary is a rune boundary.
type Tokenizer struct {
	enc encoder
}

// New loads the cl100k_base encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Name)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", Name, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Name returns the encoding name.
func (t *Tokenizer) Name() string {
	return Name
}

// Tokenize encodes text and returns tokens with byte offsets.
// Special-token text such as "<|endoftext|>" is tokenized rather than rejected.
func (t *Tokenizer) Tokenize(ctx context.Context, text string) ([]domain.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	ids := t.enc.Encode(text, []string{"all"}, nil)
	tokens := make([]domain.Token, 0, len(ids))

	start, end := 0, 0
	for _, id := range ids {
		end += len(t.enc.Decode([]int{id}))
		if end > len(text) {
			return nil, fmt.Errorf("%s: decoded tokens exceed input length", Name)
		}
		if end < len(text) && !utf8.RuneStart(text[end]) {
			continue
		}
		tokens = append(tokens, domain.Token{Text: text[start:end], Start: start, End: end})
		start = end
	}

	if end != len(text) {
		return nil, fmt.Errorf("%s: decoded %d of %d bytes", Name, end, len(text))
	}
	return tokens, nil
}
