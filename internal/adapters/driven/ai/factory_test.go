package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

func providerSettings(p domain.AIProvider, model string) domain.ProviderSettings {
	return domain.ProviderSettings{Provider: p, Model: model, APIKey: "test-key"}
}

func TestFactory_EmbeddingModel(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.EmbeddingSettings
		wantNil  bool
		wantErr  error
		dims     int
	}{
		{name: "nil settings returns nil", settings: nil, wantNil: true},
		{name: "unconfigured settings returns nil", settings: &domain.EmbeddingSettings{}, wantNil: true},
		{
			name:     "ollama",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings(domain.AIProviderOllama, "nomic-embed-text")},
			dims:     768,
		},
		{
			name:     "openai",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings(domain.AIProviderOpenAI, "text-embedding-3-small")},
			dims:     1536,
		},
		{
			name: "openai with dimensions override",
			settings: &domain.EmbeddingSettings{
				ProviderSettings: providerSettings(domain.AIProviderOpenAI, "text-embedding-3-large"),
				Dimensions:       256,
			},
			dims: 256,
		},
		{
			name:     "gemini",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings(domain.AIProviderGemini, "text-embedding-004")},
			dims:     768,
		},
		{
			name:     "anthropic returns error",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings(domain.AIProviderAnthropic, "claude")},
			wantNil:  true,
			wantErr:  domain.ErrUnsupportedType,
		},
		{
			name:     "unknown provider is not configured",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings("unknown", "m")},
			wantNil:  true,
		},
		{
			name:     "openai without model fails",
			settings: &domain.EmbeddingSettings{ProviderSettings: providerSettings(domain.AIProviderOpenAI, "")},
			wantNil:  true,
			wantErr:  domain.ErrInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFactory().EmbeddingModel(context.Background(), tt.settings)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			defer m.Close()

			desc := m.Descriptor()
			assert.Equal(t, tt.settings.Provider, desc.Provider)
			assert.Equal(t, []domain.Capability{domain.CapabilityEmbedding}, desc.Capabilities)
			assert.Equal(t, tt.dims, desc.Dimensions)
		})
	}
}

func TestFactory_LLMModel(t *testing.T) {
	providers := []domain.AIProvider{
		domain.AIProviderOllama,
		domain.AIProviderOpenAI,
		domain.AIProviderAnthropic,
		domain.AIProviderGemini,
	}
	for _, p := range providers {
		t.Run(string(p), func(t *testing.T) {
			settings := &domain.LLMSettings{ProviderSettings: providerSettings(p, domain.DefaultLLMModels()[p])}

			m, err := NewFactory().LLMModel(context.Background(), settings)
			require.NoError(t, err)
			require.NotNil(t, m)
			defer m.Close()

			desc := m.Descriptor()
			assert.True(t, desc.Supports(domain.CapabilityChat))
			assert.True(t, desc.Supports(domain.CapabilityCompletion))
			assert.False(t, desc.Supports(domain.CapabilityEmbedding))
		})
	}

	m, err := NewFactory().LLMModel(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestFactory_SharesLimiterPerProvider(t *testing.T) {
	f := NewFactory()
	assert.Same(t, f.limiter(domain.AIProviderOpenAI), f.limiter(domain.AIProviderOpenAI))
	assert.NotSame(t, f.limiter(domain.AIProviderOpenAI), f.limiter(domain.AIProviderOllama))
}

func TestFactory_Registry(t *testing.T) {
	settings := domain.DefaultAppSettings()
	settings.Embedding.ProviderSettings = providerSettings(domain.AIProviderOllama, "nomic-embed-text")
	settings.LLM.ProviderSettings = providerSettings(domain.AIProviderAnthropic, "claude-3-5-haiku-latest")

	registry, err := NewFactory().Registry(context.Background(), settings)
	require.NoError(t, err)
	defer registry.Close()

	embedder, err := registry.ResolveEmbedding("")
	require.NoError(t, err)
	assert.Equal(t, "ollama/nomic-embed-text", embedder.Descriptor().ID())

	chat, err := registry.ResolveChat("")
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderAnthropic, chat.Descriptor().Provider)

	_, err = registry.ResolveImage("")
	assert.ErrorIs(t, err, domain.ErrNoMatchingProvider)
}

func TestFactory_Registry_Unconfigured(t *testing.T) {
	registry, err := NewFactory().Registry(context.Background(), domain.DefaultAppSettings())
	require.NoError(t, err)
	assert.Empty(t, registry.Descriptors())
}

func TestFactory_Registry_UnknownDimensions(t *testing.T) {
	settings := domain.DefaultAppSettings()
	settings.Embedding.ProviderSettings = providerSettings(domain.AIProviderOllama, "custom-embed")

	_, err := NewFactory().Registry(context.Background(), settings)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := &domain.LLMSettings{ProviderSettings: domain.ProviderSettings{
		Provider: domain.AIProviderOllama, Model: "llama3.2", BaseURL: server.URL,
	}}
	m, err := NewFactory().LLMModel(context.Background(), settings)
	require.NoError(t, err)
	assert.NoError(t, ping(m))
}
