package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/adapters/driven/model/httpapi"
	"github.com/custodia-labs/markhor/internal/core/domain"
)

func newTestModel(t *testing.T, cfg Config, handler http.HandlerFunc) *Model {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	cfg.Retry = httpapi.RetryPolicy{MaxRetries: -1}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func TestNew_Descriptor(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		caps []domain.Capability
		dims int
	}{
		{"known embedding", Config{Model: "nomic-embed-text"}, []domain.Capability{domain.CapabilityEmbedding}, 768},
		{"explicit dims", Config{Model: "custom", Dimensions: 64}, []domain.Capability{domain.CapabilityEmbedding}, 64},
		{"chat", Config{Model: "llama3.2"}, []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion}, 0},
		{"override", Config{Model: "llama3.2", Capabilities: []domain.Capability{domain.CapabilityChat}}, []domain.Capability{domain.CapabilityChat}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.caps, m.Descriptor().Capabilities)
			assert.Equal(t, tt.dims, m.Descriptor().Dimensions)
			assert.Equal(t, "ollama/"+tt.cfg.Model, m.Descriptor().ID())
		})
	}

	_, err := New(Config{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEmbed(t *testing.T) {
	m := newTestModel(t, Config{Model: "all-minilm"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req["model"])
		assert.NotContains(t, req, "truncate")

		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2], [0.3, 0.4]], "prompt_eval_count": 6}`))
	})

	resp, err := m.Embed(context.Background(), domain.EmbeddingRequest{
		Inputs:     []string{"a", "b"},
		Truncation: domain.TruncateEnd,
	})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, resp.Vectors)
	assert.Equal(t, 6, resp.Usage.InputTokens)
}

func TestEmbed_TruncateNone(t *testing.T) {
	m := newTestModel(t, Config{Model: "all-minilm"}, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Truncate)
		assert.False(t, *req.Truncate)
		_, _ = w.Write([]byte(`{"embeddings": [[1]]}`))
	})

	_, err := m.Embed(context.Background(), domain.EmbeddingRequest{Inputs: []string{"a"}, Truncation: domain.TruncateNone})
	require.NoError(t, err)
}

func TestEmbed_CountMismatch(t *testing.T) {
	m := newTestModel(t, Config{Model: "all-minilm"}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[1]]}`))
	})

	_, err := m.Embed(context.Background(), domain.EmbeddingRequest{Inputs: []string{"a", "b"}})
	assert.ErrorIs(t, err, domain.ErrProviderError)
}

func TestEmbed_ModelNotFound(t *testing.T) {
	m := newTestModel(t, Config{Model: "all-minilm"}, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model \"all-minilm\" not found, try pulling it first"}`))
	})

	_, err := m.Embed(context.Background(), domain.EmbeddingRequest{Inputs: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "try pulling it first")
}

func TestChat(t *testing.T) {
	m := newTestModel(t, Config{Model: "llama3.2"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 20, req.Options.NumPredict)

		_, _ = w.Write([]byte(`{
			"message": {"role": "assistant", "content": "pong"},
			"done_reason": "stop", "prompt_eval_count": 3, "eval_count": 1
		}`))
	})

	resp, err := m.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "ping"}},
		Options:  domain.GenerationOptions{MaxTokens: 20},
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, domain.Usage{InputTokens: 3, OutputTokens: 1}, resp.Usage)
}

func TestComplete(t *testing.T) {
	m := newTestModel(t, Config{Model: "llama3.2"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "once upon", req["prompt"])
		assert.NotContains(t, req, "options")
		_, _ = w.Write([]byte(`{"response": " a time", "done_reason": "length"}`))
	})

	resp, err := m.Complete(context.Background(), domain.CompletionRequest{Prompt: "once upon"})
	require.NoError(t, err)
	assert.Equal(t, " a time", resp.Text)
	assert.Equal(t, "length", resp.FinishReason)
}

func TestPing(t *testing.T) {
	m := newTestModel(t, Config{Model: "llama3.2"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, m.Ping(context.Background()))
}

func TestPing_ServerDown(t *testing.T) {
	m, err := New(Config{Model: "llama3.2", BaseURL: "http://127.0.0.1:1", Retry: httpapi.RetryPolicy{MaxRetries: -1}})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Ping(context.Background()), domain.ErrUnavailable)
}
