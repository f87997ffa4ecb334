package html

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Normalise strips markup, scripts and styles, keeping one line per block element.
func (n *Normaliser) Normalise(_ string, data []byte) (*driven.NormalisedText, error) {
	if !utf8.Valid(data) {
		return nil, domain.ErrInvalidInput
	}
	content := string(data)
	return &driven.NormalisedText{
		Title:   extractTitle(content),
		Content: stripHTML(content),
		Format:  "html",
	}, nil
}

var (
	titleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	// dropped removes elements whose content is never readable text.
	dropped = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`),
		regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`),
		regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`),
		regexp.MustCompile(`(?s)<!--.*?-->`),
	}

	// breaks become newlines so block elements stay on their own lines.
	breaks = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`),
		regexp.MustCompile(`(?i)</(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|section|article)>`),
		regexp.MustCompile(`(?i)<(br|hr)\s*/?>`),
	}

	anyTag    = regexp.MustCompile(`<[^>]+>`)
	blankRuns = regexp.MustCompile(`[ \t]+`)
)

// extractTitle returns the decoded <title> text, or "" when absent.
func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) < 2 {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(matches[1]))
}

// stripHTML returns the visible text, one non-empty line per block.
func stripHTML(content string) string {
	for _, re := range dropped {
		content = re.ReplaceAllString(content, "")
	}
	for _, re := range breaks {
		content = re.ReplaceAllString(content, "\n")
	}
	content = anyTag.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = blankRuns.ReplaceAllString(content, " ")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
