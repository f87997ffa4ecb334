// Package docx extracts paragraph text from Office Open XML documents.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MIMEType is the DOCX media type.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// maxPartSize bounds how much of one archive part is read.
const maxPartSize = 32 << 20

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{MIMEType}
}

// Normalise returns the document body with one line per paragraph.
// The title comes from docProps/core.xml when present.
func (n *Normaliser) Normalise(name string, data []byte) (*driven.NormalisedText, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a docx archive", domain.ErrInvalidInput, name)
	}

	body, ok, err := readPart(archive, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no word/document.xml", domain.ErrInvalidInput, name)
	}
	content, err := parseDocumentXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, name, err)
	}

	out := &driven.NormalisedText{Content: content, Format: "docx"}
	if core, ok, _ := readPart(archive, "docProps/core.xml"); ok {
		var props coreXML
		if xml.Unmarshal(core, &props) == nil {
			out.Title = strings.TrimSpace(props.Title)
		}
	}
	return out, nil
}

func readPart(archive *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range archive.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		return data, true, err
	}
	return nil, false, nil
}

// documentXML is the subset of word/document.xml that carries text.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []string `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, p := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type coreXML struct {
	Title string `xml:"title"`
}
