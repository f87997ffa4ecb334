package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/markhor/internal/core/domain"
)

// mockValidator records validation calls.
type mockValidator struct {
	embedErr  error
	llmErr    error
	embedSeen *domain.EmbeddingSettings
	llmSeen   *domain.LLMSettings
}

func (m *mockValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	m.embedSeen = config
	return m.embedErr
}

func (m *mockValidator) ValidateLLM(config *domain.LLMSettings) error {
	m.llmSeen = config
	return m.llmErr
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	settings, err := service.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults, *settings)
}

func TestSettingsService_Get_ReadsAllFields(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "openai")
	_ = store.Set("embedding.model", "text-embedding-3-large")
	_ = store.Set("embedding.api_key", "sk-test")
	_ = store.Set("embedding.dimensions", int64(1024))
	_ = store.Set("embedding.use_case", "clustering")
	_ = store.Set("llm.provider", "anthropic")
	_ = store.Set("llm.model", "claude-3-5-haiku-latest")
	_ = store.Set("retrieval.chunk_size", int64(128))
	_ = store.Set("retrieval.chunk_overlap", int64(16))
	_ = store.Set("retrieval.concurrency", int64(2))
	_ = store.Set("retrieval.batch_size", int64(32))
	_ = store.Set("retrieval.min_score", 0.6)
	_ = store.Set("retrieval.tokenizer", "cl100k_base")
	_ = store.Set("retrieval.chunker", "markdown")
	_ = store.Set("cache.size", int64(100))
	_ = store.Set("cache.ttl_seconds", int64(90))
	_ = store.Set("cache.persist", false)
	_ = store.Set("cache.persist_size", int64(0))
	_ = store.Set("workspace.path", "/notes")
	_ = store.Set("workspace.extensions", []any{".org"})

	settings, err := NewSettingsService(store, nil).Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
	assert.Equal(t, 1024, settings.Embedding.Dimensions)
	assert.Equal(t, domain.UseCaseClustering, settings.Embedding.UseCase)
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, domain.RetrievalSettings{
		ChunkSize:    128,
		ChunkOverlap: 16,
		Concurrency:  2,
		BatchSize:    32,
		MinScore:     0.6,
		Tokenizer:    domain.TokenizerCL100K,
		Chunker:      domain.ChunkerMarkdown,
	}, settings.Retrieval)
	assert.Equal(t, domain.CacheSettings{Size: 100, TTL: 90 * time.Second, Persist: false, PersistSize: 0}, settings.Cache)
	assert.Equal(t, "/notes", settings.Workspace.Path)
	assert.Equal(t, []string{".org"}, settings.Workspace.Extensions)
}

func TestSettingsService_Get_InvalidProviderFallsBack(t *testing.T) {
	store := memory.NewConfigStore()
	_ = store.Set("embedding.provider", "invalid_provider")

	settings, err := NewSettingsService(store, nil).Get()

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAppSettings().Embedding.Provider, settings.Embedding.Provider)
}

func TestSettingsService_SetEmbeddingSettings(t *testing.T) {
	tests := []struct {
		name      string
		in        domain.EmbeddingSettings
		wantModel string
		wantURL   string
		wantErr   error
	}{
		{
			name:      "ollama defaults model and base url",
			in:        domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{Provider: domain.AIProviderOllama}},
			wantModel: domain.DefaultEmbeddingModels()[domain.AIProviderOllama],
			wantURL:   "http://localhost:11434",
		},
		{
			name: "openai with explicit model",
			in: domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{
				Provider: domain.AIProviderOpenAI, Model: "text-embedding-3-small", APIKey: "sk",
			}},
			wantModel: "text-embedding-3-small",
		},
		{
			name:    "invalid provider",
			in:      domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{Provider: "nope"}},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name: "anthropic has no embeddings",
			in: domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{
				Provider: domain.AIProviderAnthropic, APIKey: "sk",
			}},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name:    "missing api key",
			in:      domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{Provider: domain.AIProviderOpenAI}},
			wantErr: domain.ErrInvalidConfiguration,
		},
		{
			name: "unknown model without dimensions",
			in: domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{
				Provider: domain.AIProviderOllama, Model: "custom-embed",
			}},
			wantErr: domain.ErrInvalidConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewConfigStore()
			service := NewSettingsService(store, nil)

			err := service.SetEmbeddingSettings(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			settings, _ := service.Get()
			assert.Equal(t, tt.in.Provider, settings.Embedding.Provider)
			assert.Equal(t, tt.wantModel, settings.Embedding.Model)
			assert.Equal(t, tt.wantURL, settings.Embedding.BaseURL)
		})
	}
}

func TestSettingsService_SetEmbeddingSettings_CustomModelWithDimensions(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	err := service.SetEmbeddingSettings(domain.EmbeddingSettings{
		ProviderSettings: domain.ProviderSettings{Provider: domain.AIProviderOllama, Model: "custom-embed"},
		Dimensions:       512,
	})
	require.NoError(t, err)

	settings, _ := service.Get()
	assert.Equal(t, 512, settings.Embedding.ResolvedDimensions())
}

func TestSettingsService_SetEmbeddingSettings_Validator(t *testing.T) {
	validator := &mockValidator{}
	store := memory.NewConfigStore()
	service := NewSettingsService(store, validator)
	in := domain.EmbeddingSettings{ProviderSettings: domain.ProviderSettings{Provider: domain.AIProviderOllama}}

	require.NoError(t, service.SetEmbeddingSettings(in))
	require.NotNil(t, validator.embedSeen)
	assert.Equal(t, "http://localhost:11434", validator.embedSeen.BaseURL)

	validator.embedErr = errors.New("connection refused")
	in.Model = "mxbai-embed-large"
	err := service.SetEmbeddingSettings(in)
	assert.Error(t, err)

	settings, _ := service.Get()
	assert.NotEqual(t, "mxbai-embed-large", settings.Embedding.Model, "failed validation must not persist")
}

func TestSettingsService_SetLLMSettings(t *testing.T) {
	validator := &mockValidator{}
	service := NewSettingsService(memory.NewConfigStore(), validator)

	err := service.SetLLMSettings(domain.LLMSettings{ProviderSettings: domain.ProviderSettings{
		Provider: domain.AIProviderAnthropic, APIKey: "sk-ant",
	}})
	require.NoError(t, err)

	settings, _ := service.Get()
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, domain.DefaultLLMModels()[domain.AIProviderAnthropic], settings.LLM.Model)
	assert.NotNil(t, validator.llmSeen)

	err = service.SetLLMSettings(domain.LLMSettings{ProviderSettings: domain.ProviderSettings{
		Provider: domain.AIProviderOpenAI,
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	err = service.SetLLMSettings(domain.LLMSettings{ProviderSettings: domain.ProviderSettings{Provider: "bogus"}})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSettingsService_SetRetrievalSettings(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	in := domain.RetrievalSettings{
		ChunkSize: 64, ChunkOverlap: 8, Concurrency: 3, BatchSize: 10, MinScore: 0.25,
		Tokenizer: domain.TokenizerWords, Chunker: domain.ChunkerMarkdown,
	}
	require.NoError(t, service.SetRetrievalSettings(in))

	settings, _ := service.Get()
	assert.Equal(t, in, settings.Retrieval)

	in.ChunkOverlap = 64
	assert.ErrorIs(t, service.SetRetrievalSettings(in), domain.ErrInvalidConfiguration)
}

func TestSettingsService_SetWorkspacePath(t *testing.T) {
	service := NewSettingsService(memory.NewConfigStore(), nil)

	require.NoError(t, service.SetWorkspacePath("/data/notes"))
	settings, _ := service.Get()
	assert.Equal(t, "/data/notes", settings.Workspace.Path)

	assert.ErrorIs(t, service.SetWorkspacePath(""), domain.ErrInvalidConfiguration)
}

func TestSettingsService_Validate(t *testing.T) {
	store := memory.NewConfigStore()
	service := NewSettingsService(store, nil)

	assert.ErrorIs(t, service.Validate(), domain.ErrInvalidConfiguration, "no embedding provider")

	_ = store.Set("embedding.provider", "ollama")
	assert.NoError(t, service.Validate())

	_ = store.Set("retrieval.tokenizer", "sentencepiece")
	assert.ErrorIs(t, service.Validate(), domain.ErrUnsupportedType)
}
