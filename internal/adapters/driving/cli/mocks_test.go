package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
)

var errMock = errors.New("mock failure")

// mockRetrievalService records calls and returns canned results.
type mockRetrievalService struct {
	reports []*domain.IndexReport
	hits    []domain.RetrievedChunk
	state   *domain.IndexState
	retried int
	reclaim int
	err     error

	indexed  []string
	changed  []string
	removed  []string
	query    string
	k        int
	scope    domain.RetrievalScope
	compacts int
}

func (m *mockRetrievalService) IndexDocument(_ context.Context, id string) (*domain.IndexReport, error) {
	m.indexed = append(m.indexed, id)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IndexReport{DocumentID: id, Revision: 1, Chunks: 2, Embedded: 2}, nil
}

func (m *mockRetrievalService) IndexWorkspace(context.Context) ([]*domain.IndexReport, error) {
	return m.reports, m.err
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

func (m *mockRetrievalService) DocumentChanged(_ context.Context, id string) (*domain.IndexReport, error) {
	m.changed = append(m.changed, id)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IndexReport{DocumentID: id, Revision: 2, Chunks: 1, Embedded: 1}, nil
}

func (m *mockRetrievalService) DocumentRemoved(_ context.Context, id string) error {
	m.removed = append(m.removed, id)
	return m.err
}

func (m *mockRetrievalService) RetryFailed(_ context.Context, scope domain.RetrievalScope) (int, error) {
	m.scope = scope
	return m.retried, m.err
}

func (m *mockRetrievalService) Compact() int {
	m.compacts++
	return m.reclaim
}

func (m *mockRetrievalService) Status(_ context.Context, id string) (*domain.IndexState, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.state == nil || m.state.DocumentID != id {
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

// mockSettingsService keeps settings in memory.
type mockSettingsService struct {
	settings    domain.AppSettings
	setErr      error
	validateErr error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings()}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) SetEmbeddingSettings(s domain.EmbeddingSettings) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.settings.Embedding = s
	return nil
}

func (m *mockSettingsService) SetLLMSettings(s domain.LLMSettings) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.settings.LLM = s
	return nil
}

func (m *mockSettingsService) SetRetrievalSettings(s domain.RetrievalSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings.Retrieval = s
	return nil
}

func (m *mockSettingsService) SetWorkspacePath(path string) error {
	m.settings.Workspace.Path = path
	return nil
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}

// mockRegistry lists fixed descriptors.
type mockRegistry struct {
	driving.ModelRegistry

	descs []domain.ModelDescriptor
}

func (m *mockRegistry) Descriptors() []domain.ModelDescriptor {
	return m.descs
}

// mockWorkspace is a fixed workspace that replays queued changes.
type mockWorkspace struct {
	changes []driven.DocumentChange
}

func (m *mockWorkspace) ID() string { return "ws" }

func (m *mockWorkspace) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	return &domain.Document{ID: id, WorkspaceID: "ws", Revision: 1}, nil
}

func (m *mockWorkspace) ListDocuments(context.Context) ([]string, error) {
	return nil, nil
}

// Watch emits the queued changes, then closes the channel.
func (m *mockWorkspace) Watch(ctx context.Context) (<-chan driven.DocumentChange, error) {
	ch := make(chan driven.DocumentChange)
	go func() {
		defer close(ch)
		for _, c := range m.changes {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// testServices exposes the doubles installed by setupTestServices.
type testServices struct {
	retrieval *mockRetrievalService
	answer    *mockAnswerService
	settings  *mockSettingsService
	registry  *mockRegistry
	workspace *mockWorkspace
	saves     int
}

// setupTestServices installs doubles for every port and returns a cleanup
// that removes them and restores flag defaults.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		retrieval: &mockRetrievalService{},
		answer:    &mockAnswerService{},
		settings:  newMockSettingsService(),
		registry: &mockRegistry{descs: []domain.ModelDescriptor{{
			Name:         "nomic-embed-text",
			Provider:     domain.AIProviderOllama,
			Capabilities: []domain.Capability{domain.CapabilityEmbedding},
			Dimensions:   768,
			UseCase:      domain.UseCaseRetrievalDocument,
		}}},
		workspace: &mockWorkspace{},
	}

	retrievalService = ts.retrieval
	answerService = ts.answer
	settingsService = ts.settings
	modelRegistry = ts.registry
	workspace = ts.workspace
	workspaceWatcher = ts.workspace
	persist = func(context.Context) error {
		ts.saves++
		return nil
	}

	return ts, func() {
		retrievalService, answerService, settingsService, modelRegistry = nil, nil, nil, nil
		workspace, workspaceWatcher, persist = nil, nil, nil
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}
}

// resetFlags restores every flag in the tree to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func sampleHits() []domain.RetrievedChunk {
	return []domain.RetrievedChunk{
		{
			Chunk:      domain.Chunk{ID: "c1", DocumentID: "notes/fox.md", Content: "The quick  brown\nfox.", End: 20},
			Score:      0.91,
			Rank:       0,
			Percentile: 100,
		},
		{
			Chunk:      domain.Chunk{ID: "c2", DocumentID: "notes/dog.md", Content: "The lazy dog."},
			Score:      0.42,
			Rank:       1,
			Percentile: 50,
		},
	}
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
