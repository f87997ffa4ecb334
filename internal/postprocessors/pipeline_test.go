package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// mockProcessor is a test processor that returns predefined chunks.
type mockProcessor struct {
	name   string
	chunks []domain.Chunk
	err    error
	calls  int
}

func (m *mockProcessor) Name() string {
	return m.name
}

func (m *mockProcessor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.chunks != nil {
		return m.chunks, nil
	}
	return chunks, nil
}

func TestPipeline_Process_NilDocument(t *testing.T) {
	p := NewPipeline()

	_, err := p.Process(context.Background(), nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPipeline_Process_EmptyPipeline(t *testing.T) {
	p := NewPipeline()

	chunks, err := p.Process(context.Background(), &domain.Document{ID: "d", Content: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Errorf("expected nil chunks from empty pipeline, got %v", chunks)
	}
}

func TestPipeline_Process_ChainsOutput(t *testing.T) {
	first := &mockProcessor{name: "chunker", chunks: []domain.Chunk{{ID: "c1"}}}
	passthrough := &mockProcessor{name: "passthrough"}

	p := NewPipeline(first)
	p.Add(passthrough)
	if p.Len() != 2 {
		t.Fatalf("expected 2 processors, got %d", p.Len())
	}

	chunks, err := p.Process(context.Background(), &domain.Document{ID: "d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Errorf("expected chunk c1 to pass through, got %v", chunks)
	}
}

func TestPipeline_Process_ProcessorError(t *testing.T) {
	expectedErr := errors.New("processor failed")
	after := &mockProcessor{name: "after"}

	p := NewPipeline(&mockProcessor{name: "failing", err: expectedErr}, after)

	_, err := p.Process(context.Background(), &domain.Document{ID: "d"})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected wrapped error, got: %v", err)
	}
	if after.calls != 0 {
		t.Error("expected later processors to be skipped")
	}
}

func TestPipeline_Process_Cancelled(t *testing.T) {
	proc := &mockProcessor{name: "chunker"}
	p := NewPipeline(proc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, &domain.Document{ID: "d"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if proc.calls != 0 {
		t.Error("expected no processor to run after cancellation")
	}
}
