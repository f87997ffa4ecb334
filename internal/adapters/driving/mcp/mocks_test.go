package mcp

import (
	"context"
	"sort"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
)

// mockRetrievalService records Retrieve arguments and returns canned results.
type mockRetrievalService struct {
	driving.RetrievalService

	hits  []domain.RetrievedChunk
	state *domain.IndexState
	err   error

	query string
	k     int
	scope domain.RetrievalScope
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	k int,
	scope domain.RetrievalScope,
) ([]domain.RetrievedChunk, error) {
	m.query, m.k, m.scope = query, k, scope
	return m.hits, m.err
}

func (m *mockRetrievalService) Status(_ context.Context, documentID string) (*domain.IndexState, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.state == nil || m.state.DocumentID != documentID {
		return nil, domain.ErrNotFound
	}
	return m.state, nil
}

// mockAnswerService returns a fixed answer.
type mockAnswerService struct {
	answer *domain.Answer
	err    error
	req    domain.AskRequest
}

func (m *mockAnswerService) Ask(_ context.Context, req domain.AskRequest) (*domain.Answer, error) {
	m.req = req
	return m.answer, m.err
}

// mockWorkspace serves documents from a map.
type mockWorkspace struct {
	docs map[string]string
	err  error
}

func (m *mockWorkspace) ID() string { return "ws" }

func (m *mockWorkspace) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	text, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Document{ID: id, WorkspaceID: "ws", Content: text, Revision: 1}, nil
}

func (m *mockWorkspace) ListDocuments(context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// mockModels reports fixed descriptors.
type mockModels struct {
	driving.ModelRegistry

	descs []domain.ModelDescriptor
}

func (m *mockModels) Descriptors() []domain.ModelDescriptor { return m.descs }
