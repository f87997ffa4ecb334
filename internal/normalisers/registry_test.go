package normalisers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

type stubNormaliser struct {
	types  []string
	format string
}

func (s stubNormaliser) SupportedMIMETypes() []string { return s.types }

func (s stubNormaliser) Normalise(_ string, data []byte) (*driven.NormalisedText, error) {
	return &driven.NormalisedText{Content: string(data), Format: s.format}, nil
}

func TestDefault(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/xhtml+xml",
		"text/html",
	}, r.MIMETypes())

	n, ok := r.For("text/html")
	require.True(t, ok)
	out, err := n.Normalise("page.html", []byte("<p>Hello</p>"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Content)

	_, ok = r.For("text/plain")
	assert.False(t, ok)
}

func TestRegistry_LaterRegistrationWins(t *testing.T) {
	r := NewRegistry(
		stubNormaliser{types: []string{"a/b", "c/d"}, format: "first"},
		stubNormaliser{types: []string{"c/d"}, format: "second"},
	)

	n, ok := r.For("a/b")
	require.True(t, ok)
	out, _ := n.Normalise("", nil)
	assert.Equal(t, "first", out.Format)

	n, ok = r.For("c/d")
	require.True(t, ok)
	out, _ = n.Normalise("", nil)
	assert.Equal(t, "second", out.Format)
}
