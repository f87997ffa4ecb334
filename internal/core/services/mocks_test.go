package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// stubModel implements only the base Model contract.
type stubModel struct {
	desc     domain.ModelDescriptor
	closeErr error
	closed   bool
}

func (m *stubModel) Descriptor() domain.ModelDescriptor { return m.desc }
func (m *stubModel) Ping(context.Context) error         { return nil }
func (m *stubModel) Close() error {
	m.closed = true
	return m.closeErr
}

// stubChatModel adds chat and completion.
type stubChatModel struct {
	stubModel
}

func (m *stubChatModel) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &domain.ChatResponse{
		Model:   m.desc.Name,
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: "echo: " + last.Content},
	}, nil
}

func (m *stubChatModel) Complete(_ context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{Model: m.desc.Name, Text: req.Prompt + "..."}, nil
}

// stubImageModel adds image generation.
type stubImageModel struct {
	stubModel
}

func (m *stubImageModel) GenerateImage(context.Context, domain.ImageRequest) (*domain.ImageResponse, error) {
	return &domain.ImageResponse{Model: m.desc.Name, Images: []domain.Image{{URL: "https://example.invalid/1.png"}}}, nil
}

// stubEmbeddingModel produces one-hot word vectors: each distinct word gets
// its own dimension, so texts sharing words score above zero.
type stubEmbeddingModel struct {
	stubModel

	mu     sync.Mutex
	words  map[string]int
	inputs [][]string
	reqs   []domain.EmbeddingRequest

	// fail, if set, is consulted per call before embedding.
	fail func(inputs []string) error

	// mutate, if set, rewrites the response.
	mutate func(resp *domain.EmbeddingResponse)
}

func newStubEmbeddingModel(name string, dims int) *stubEmbeddingModel {
	return &stubEmbeddingModel{
		stubModel: stubModel{desc: domain.ModelDescriptor{
			Name:         name,
			Provider:     domain.AIProviderOllama,
			Capabilities: []domain.Capability{domain.CapabilityEmbedding},
			Dimensions:   dims,
		}},
		words: make(map[string]int),
	}
}

func (m *stubEmbeddingModel) Embed(_ context.Context, req domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, slices.Clone(req.Inputs))
	m.reqs = append(m.reqs, req)
	if m.fail != nil {
		if err := m.fail(req.Inputs); err != nil {
			return nil, err
		}
	}

	resp := &domain.EmbeddingResponse{Model: m.desc.Name}
	for _, text := range req.Inputs {
		resp.Vectors = append(resp.Vectors, m.vector(text))
	}
	if m.mutate != nil {
		m.mutate(resp)
	}
	return resp, nil
}

func (m *stubEmbeddingModel) vector(text string) []float32 {
	v := make([]float32, m.desc.Dimensions)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		i, ok := m.words[w]
		if !ok {
			i = len(m.words) % m.desc.Dimensions
			m.words[w] = i
		}
		v[i]++
	}
	return v
}

func (m *stubEmbeddingModel) calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.inputs)
}

func (m *stubEmbeddingModel) setFail(fail func(inputs []string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *stubEmbeddingModel) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = nil
	m.reqs = nil
}

// failOn fails any call whose inputs contain word.
func failOn(word string, kind domain.ErrorKind) func([]string) error {
	return func(inputs []string) error {
		for _, in := range inputs {
			if strings.Contains(in, word) {
				return &domain.ProviderError{Kind: kind, Provider: domain.AIProviderOllama, Message: "boom"}
			}
		}
		return nil
	}
}

// mapCache is a map-backed driven.EmbeddingCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[domain.CacheKey][]float32
	getErr  error
	putErr  error
	puts    int
}

var _ driven.EmbeddingCache = (*mapCache)(nil)

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[domain.CacheKey][]float32)}
}

func (c *mapCache) Get(_ context.Context, key domain.CacheKey) ([]float32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return slices.Clone(v), ok, nil
}

func (c *mapCache) Put(_ context.Context, key domain.CacheKey, vector []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[key] = slices.Clone(vector)
	return nil
}

// memWorkspace is a map-backed driven.Workspace.
type memWorkspace struct {
	id      string
	mu      sync.Mutex
	docs    map[string]*domain.Document
	listed  []string
	listErr error
	errs    map[string]error
}

var _ driven.Workspace = (*memWorkspace)(nil)

func newMemWorkspace(id string) *memWorkspace {
	return &memWorkspace{id: id, docs: make(map[string]*domain.Document)}
}

func (w *memWorkspace) ID() string { return w.id }

// put stores text under id, bumping the revision.
func (w *memWorkspace) put(id, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var rev uint64 = 1
	if old, ok := w.docs[id]; ok {
		rev = old.Revision + 1
	}
	w.docs[id] = &domain.Document{ID: id, WorkspaceID: w.id, Content: text, Revision: rev}
	delete(w.errs, id)
}

// fail makes reads of id return err until the document is put again.
func (w *memWorkspace) fail(id string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.errs == nil {
		w.errs = make(map[string]error)
	}
	w.errs[id] = err
	w.docs[id] = &domain.Document{ID: id, WorkspaceID: w.id}
}

func (w *memWorkspace) remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.docs, id)
}

func (w *memWorkspace) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.errs[id]; ok {
		return nil, err
	}
	doc, ok := w.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (w *memWorkspace) ListDocuments(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listErr != nil {
		return nil, w.listErr
	}
	if w.listed != nil {
		return slices.Clone(w.listed), nil
	}
	ids := make([]string, 0, len(w.docs))
	for id := range w.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

var errBoom = errors.New("boom")
