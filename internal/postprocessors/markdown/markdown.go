// Package markdown cuts markdown documents into chunks along block and
// heading boundaries.
//
// Consecutive blocks are packed into one chunk while they fit the token
// budget, a heading always starts a new chunk, and a block longer than the
// budget is cut into overlapping token windows. Boundaries fall on
// tokenizer offsets, exactly as with the plain token chunker, so chunk
// content is always a slice of the document text.
package markdown

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
	"github.com/custodia-labs/markhor/internal/postprocessors/chunker"
)

// KeyHeadingPath is the chunk metadata key holding the enclosing headings,
// outermost first, joined by PathSeparator.
const KeyHeadingPath = "heading_path"

// PathSeparator joins heading titles in KeyHeadingPath.
const PathSeparator = " > "

var _ driven.PostProcessor = (*Processor)(nil)

// Processor chunks markdown documents structurally. Documents that are not
// markdown are handed to the token chunker with the same settings.
type Processor struct {
	tokenizer driven.Tokenizer
	fallback  *chunker.Chunker
	parser    goldmark.Markdown
}

// New creates a markdown processor. It accepts the token chunker's options
// and validates them the same way.
func New(tokenizer driven.Tokenizer, opts ...chunker.Option) (*Processor, error) {
	c, err := chunker.New(tokenizer, opts...)
	if err != nil {
		return nil, err
	}
	return &Processor{tokenizer: tokenizer, fallback: c, parser: goldmark.New()}, nil
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "markdown"
}

// ChunkSize returns the token budget per chunk.
func (p *Processor) ChunkSize() int {
	return p.fallback.ChunkSize()
}

// Process splits the document content into chunks. Input chunks are ignored.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	return p.Split(ctx, doc)
}

// Split cuts the document into chunks.
func (p *Processor) Split(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil || doc.Content == "" {
		return nil, nil
	}
	if !IsMarkdown(doc) {
		return p.fallback.Split(ctx, doc)
	}

	tokens, err := p.tokenizer.Tokenize(ctx, doc.Content)
	if err != nil {
		return nil, fmt.Errorf("tokenize %s: %w", doc.ID, err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	source := []byte(doc.Content)
	blocks := p.blocks(source)
	bounds := tokenBounds(blocks, tokens)

	s := &splitter{
		doc:     doc,
		tokens:  tokens,
		size:    p.fallback.ChunkSize(),
		overlap: p.fallback.Overlap(),
	}
	var headings []heading
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.level > 0 {
			s.flush()
			headings = enter(headings, heading{level: b.level, title: b.title})
			s.path = headingPath(headings)
		}
		if first, last := bounds[i], bounds[i+1]; first < last {
			s.add(first, last)
		}
	}
	s.flush()

	logger.Debug("markdown: %s cut into %d chunks from %d blocks", doc.ID, len(s.chunks), len(blocks))
	return s.chunks, nil
}

// IsMarkdown reports whether a document should be parsed as markdown, by
// its MIME type or, failing that, its extension.
func IsMarkdown(doc *domain.Document) bool {
	if mime, ok := doc.Metadata["mime_type"].(string); ok && mime != "" {
		return mime == "text/markdown" || mime == "text/x-markdown"
	}
	switch strings.ToLower(path.Ext(doc.ID)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// block is one top-level markdown block.
type block struct {
	// start is the byte offset of the block's first source line.
	start int

	// level is the heading level, or zero for other blocks.
	level int
	title string
}

// blocks lists the top-level blocks of source in document order. Blocks
// with no source text, such as thematic breaks, are folded into their
// predecessor. A document without any block yields one block at offset 0.
func (p *Processor) blocks(source []byte) []block {
	root := p.parser.Parser().Parse(text.NewReader(source))

	var out []block
	prev := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		lo, ok := firstOffset(n, source)
		if !ok {
			continue
		}
		b := block{start: max(lineStart(source, lo), prev)}
		if h, ok := n.(*ast.Heading); ok {
			b.level = h.Level
			b.title = inlineText(h, source)
		}
		out = append(out, b)
		prev = b.start
	}
	if len(out) == 0 {
		return []block{{start: 0}}
	}
	return out
}

// firstOffset returns the smallest source offset covered by n or its
// descendants.
func firstOffset(n ast.Node, source []byte) (int, bool) {
	lo := -1
	note := func(off int) {
		if lo < 0 || off < lo {
			lo = off
		}
	}
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if code, ok := c.(*ast.FencedCodeBlock); ok {
			// The opening fence is not among the block's lines.
			switch {
			case code.Info != nil:
				note(code.Info.Segment.Start)
			case code.Lines().Len() > 0:
				if first := code.Lines().At(0).Start; first > 0 {
					note(lineStart(source, first-1))
				}
			}
		}
		switch {
		case c.Type() == ast.TypeBlock:
			if lines := c.Lines(); lines.Len() > 0 {
				note(lines.At(0).Start)
			}
		case c.Kind() == ast.KindText:
			note(c.(*ast.Text).Segment.Start)
		}
		return ast.WalkContinue, nil
	})
	return lo, lo >= 0
}

// inlineText concatenates the text segments under n.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// lineStart returns the offset of the first byte of the line holding off.
func lineStart(source []byte, off int) int {
	for off > 0 && source[off-1] != '\n' {
		off--
	}
	return off
}

// tokenBounds maps blocks onto token indexes: block i covers tokens
// [bounds[i], bounds[i+1]). A token belongs to the block its first byte
// falls in; tokens before the first block belong to it.
func tokenBounds(blocks []block, tokens []domain.Token) []int {
	bounds := make([]int, len(blocks)+1)
	t := 0
	for i := 1; i < len(blocks); i++ {
		for t < len(tokens) && tokens[t].Start < blocks[i].start {
			t++
		}
		bounds[i] = t
	}
	bounds[len(blocks)] = len(tokens)
	return bounds
}

type heading struct {
	level int
	title string
}

// enter pushes h after closing every open heading at its level or deeper.
func enter(stack []heading, h heading) []heading {
	for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
		stack = stack[:len(stack)-1]
	}
	return append(stack, h)
}

func headingPath(stack []heading) string {
	titles := make([]string, 0, len(stack))
	for _, h := range stack {
		if h.title != "" {
			titles = append(titles, h.title)
		}
	}
	return strings.Join(titles, PathSeparator)
}

// splitter packs contiguous token ranges into chunks.
type splitter struct {
	doc     *domain.Document
	tokens  []domain.Token
	size    int
	overlap int
	path    string

	pending bool
	lo, hi  int
	chunks  []domain.Chunk
}

// add appends the block covering tokens[first:last], which must directly
// follow the pending range.
func (s *splitter) add(first, last int) {
	if last-first > s.size {
		s.flush()
		step := s.size - s.overlap
		for lo := first; ; lo += step {
			hi := min(lo+s.size, last)
			s.emit(lo, hi)
			if hi == last {
				return
			}
		}
	}
	if s.pending && s.hi-s.lo+last-first > s.size {
		s.flush()
	}
	if !s.pending {
		s.lo, s.pending = first, true
	}
	s.hi = last
}

func (s *splitter) flush() {
	if s.pending {
		s.emit(s.lo, s.hi)
		s.pending = false
	}
}

// emit builds the chunk covering tokens[first:last].
func (s *splitter) emit(first, last int) {
	start := s.tokens[first].Start
	end := s.tokens[last-1].End
	content := s.doc.Content[start:end]

	meta := make(map[string]any)
	if s.path != "" {
		meta[KeyHeadingPath] = s.path
	}
	s.chunks = append(s.chunks, domain.Chunk{
		ID:          chunker.ChunkID(s.doc.ID, s.doc.Revision, start, end),
		DocumentID:  s.doc.ID,
		WorkspaceID: s.doc.WorkspaceID,
		Revision:    s.doc.Revision,
		Position:    len(s.chunks),
		Start:       start,
		End:         end,
		TokenStart:  first,
		TokenEnd:    last,
		Content:     content,
		ContentHash: domain.ContentHash(content),
		Metadata:    meta,
	})
}
