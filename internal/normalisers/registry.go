package normalisers

import (
	"sort"
	"sync"

	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/normalisers/docx"
	"github.com/custodia-labs/markhor/internal/normalisers/html"
)

// Registry maps MIME types to normalisers.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]driven.Normaliser
}

// NewRegistry creates a registry holding ns.
// A later normaliser replaces an earlier one for a shared MIME type.
func NewRegistry(ns ...driven.Normaliser) *Registry {
	r := &Registry{byType: make(map[string]driven.Normaliser)}
	for _, n := range ns {
		r.Register(n)
	}
	return r
}

// Default returns a registry with the built-in HTML and DOCX normalisers.
func Default() *Registry {
	return NewRegistry(html.New(), docx.New())
}

// Register adds n under each of its MIME types.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range n.SupportedMIMETypes() {
		r.byType[t] = n
	}
}

// For returns the normaliser for a MIME type.
func (r *Registry) For(mimeType string) (driven.Normaliser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byType[mimeType]
	return n, ok
}

// MIMETypes returns every registered MIME type, sorted.
func (r *Registry) MIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
