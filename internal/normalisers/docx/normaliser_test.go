package docx

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// buildDOCX creates a minimal archive with the given parts.
func buildDOCX(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for name, body := range parts {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSupportedMIMETypes(t *testing.T) {
	assert.Equal(t, []string{MIMEType}, New().SupportedMIMETypes())
}

func TestNormalise(t *testing.T) {
	data := buildDOCX(t, map[string]string{
		"word/document.xml": `<?xml version="1.0"?><w:document ` + wordNS + `><w:body>
			<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>World</w:t></w:r></w:p>
			<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
		</w:body></w:document>`,
		"docProps/core.xml": `<?xml version="1.0"?><cp:coreProperties
			xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
			xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title> Quarterly Plan </dc:title></cp:coreProperties>`,
	})

	out, err := New().Normalise("plan.docx", data)

	require.NoError(t, err)
	assert.Equal(t, "Hello World\nSecond paragraph", out.Content)
	assert.Equal(t, "Quarterly Plan", out.Title)
	assert.Equal(t, "docx", out.Format)
}

func TestNormalise_NoCoreProperties(t *testing.T) {
	data := buildDOCX(t, map[string]string{
		"word/document.xml": `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>Only</w:t></w:r></w:p></w:body></w:document>`,
	})

	out, err := New().Normalise("x.docx", data)

	require.NoError(t, err)
	assert.Equal(t, "Only", out.Content)
	assert.Empty(t, out.Title)
}

func TestNormalise_Invalid(t *testing.T) {
	tests := map[string][]byte{
		"not a zip":     []byte("plain text"),
		"missing body":  buildDOCX(t, map[string]string{"other.xml": "<x/>"}),
		"malformed xml": buildDOCX(t, map[string]string{"word/document.xml": "<w:document><w:body>"}),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New().Normalise("x.docx", data)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
