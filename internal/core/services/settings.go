package services

import (
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyEmbedDims     = "embedding.dimensions"
	keyEmbedUseCase  = "embedding.use_case"
	keyLLMProvider   = "llm.provider"
	keyLLMModel      = "llm.model"
	keyLLMBaseURL    = "llm.base_url"
	keyLLMAPIKey     = "llm.api_key"
	keyChunkSize     = "retrieval.chunk_size"
	keyChunkOverlap  = "retrieval.chunk_overlap"
	keyConcurrency   = "retrieval.concurrency"
	keyBatchSize     = "retrieval.batch_size"
	keyMinScore      = "retrieval.min_score"
	keyTokenizer     = "retrieval.tokenizer"
	keyChunker       = "retrieval.chunker"
	keyCacheSize     = "cache.size"
	keyCacheTTL      = "cache.ttl_seconds"
	keyCachePersist  = "cache.persist"
	keyCacheDiskSize = "cache.persist_size"
	keyWorkspacePath = "workspace.path"
	keyWorkspaceExts = "workspace.extensions"
)

const defaultOllamaURL = "http://localhost:11434"

// SettingsService maps the config store onto typed settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// The validator is optional; without it provider settings are saved unchecked.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			ProviderSettings: domain.ProviderSettings{
				Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
				Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
				BaseURL:  s.configStore.GetString(keyEmbedBaseURL),
				APIKey:   s.configStore.GetString(keyEmbedAPIKey),
			},
			Dimensions: s.configStore.GetInt(keyEmbedDims),
			UseCase: domain.EmbeddingUseCase(
				s.getString(keyEmbedUseCase, string(defaults.Embedding.UseCase))),
		},
		LLM: domain.LLMSettings{
			ProviderSettings: domain.ProviderSettings{
				Provider: s.getProvider(keyLLMProvider, defaults.LLM.Provider),
				Model:    s.getString(keyLLMModel, defaults.LLM.Model),
				BaseURL:  s.configStore.GetString(keyLLMBaseURL),
				APIKey:   s.configStore.GetString(keyLLMAPIKey),
			},
		},
		Retrieval: domain.RetrievalSettings{
			ChunkSize:    s.getInt(keyChunkSize, defaults.Retrieval.ChunkSize),
			ChunkOverlap: s.getInt(keyChunkOverlap, defaults.Retrieval.ChunkOverlap),
			Concurrency:  s.getInt(keyConcurrency, defaults.Retrieval.Concurrency),
			BatchSize:    s.getInt(keyBatchSize, defaults.Retrieval.BatchSize),
			MinScore:     s.configStore.GetFloat(keyMinScore),
			Tokenizer: domain.TokenizerKind(
				s.getString(keyTokenizer, string(defaults.Retrieval.Tokenizer))),
			Chunker: domain.ChunkerKind(
				s.getString(keyChunker, string(defaults.Retrieval.Chunker))),
		},
		Cache: domain.CacheSettings{
			Size:        s.getInt(keyCacheSize, defaults.Cache.Size),
			TTL:         time.Duration(s.configStore.GetInt(keyCacheTTL)) * time.Second,
			Persist:     s.getBool(keyCachePersist, defaults.Cache.Persist),
			PersistSize: s.getExplicitInt(keyCacheDiskSize, defaults.Cache.PersistSize),
		},
		Workspace: domain.WorkspaceSettings{
			Path:       s.getString(keyWorkspacePath, defaults.Workspace.Path),
			Extensions: s.configStore.GetStringSlice(keyWorkspaceExts),
		},
	}
	if len(settings.Workspace.Extensions) == 0 {
		settings.Workspace.Extensions = defaults.Workspace.Extensions
	}

	return settings, nil
}

// SetEmbeddingSettings configures the embedding provider.
// The model defaults to the provider's default embedding model.
func (s *SettingsService) SetEmbeddingSettings(settings domain.EmbeddingSettings) error {
	provider := settings.Provider
	if !provider.IsValid() {
		return fmt.Errorf("%w: embedding provider %q", domain.ErrInvalidConfiguration, provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidConfiguration, provider)
	}
	if provider.RequiresAPIKey() && settings.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidConfiguration, provider)
	}

	if settings.Model == "" {
		settings.Model = domain.DefaultEmbeddingModels()[provider]
	}
	if provider.IsLocal() && settings.BaseURL == "" {
		settings.BaseURL = defaultOllamaURL
	}
	if settings.ResolvedDimensions() <= 0 {
		return fmt.Errorf("%w: unknown dimensions for model %s", domain.ErrInvalidConfiguration, settings.Model)
	}

	if s.aiValidator != nil {
		if err := s.aiValidator.ValidateEmbedding(&settings); err != nil {
			return err
		}
	}

	return s.setAll(map[string]any{
		keyEmbedProvider: provider.String(),
		keyEmbedModel:    settings.Model,
		keyEmbedBaseURL:  settings.BaseURL,
		keyEmbedAPIKey:   settings.APIKey,
		keyEmbedDims:     settings.Dimensions,
		keyEmbedUseCase:  string(settings.UseCase),
	})
}

// SetLLMSettings configures the chat/completion provider.
func (s *SettingsService) SetLLMSettings(settings domain.LLMSettings) error {
	provider := settings.Provider
	if !provider.IsValid() {
		return fmt.Errorf("%w: LLM provider %q", domain.ErrInvalidConfiguration, provider)
	}
	if provider.RequiresAPIKey() && settings.APIKey == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidConfiguration, provider)
	}

	if settings.Model == "" {
		settings.Model = domain.DefaultLLMModels()[provider]
	}
	if provider.IsLocal() && settings.BaseURL == "" {
		settings.BaseURL = defaultOllamaURL
	}

	if s.aiValidator != nil {
		if err := s.aiValidator.ValidateLLM(&settings); err != nil {
			return err
		}
	}

	return s.setAll(map[string]any{
		keyLLMProvider: provider.String(),
		keyLLMModel:    settings.Model,
		keyLLMBaseURL:  settings.BaseURL,
		keyLLMAPIKey:   settings.APIKey,
	})
}

// SetRetrievalSettings configures chunking and query behaviour.
func (s *SettingsService) SetRetrievalSettings(settings domain.RetrievalSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.setAll(map[string]any{
		keyChunkSize:    settings.ChunkSize,
		keyChunkOverlap: settings.ChunkOverlap,
		keyConcurrency:  settings.Concurrency,
		keyBatchSize:    settings.BatchSize,
		keyMinScore:     settings.MinScore,
		keyTokenizer:    string(settings.Tokenizer),
		keyChunker:      string(settings.Chunker),
	})
}

// SetWorkspacePath sets the workspace root directory.
func (s *SettingsService) SetWorkspacePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: workspace path is empty", domain.ErrInvalidConfiguration)
	}
	return s.setAll(map[string]any{keyWorkspacePath: path})
}

// Validate checks the current settings can build a pipeline.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider is not configured", domain.ErrInvalidConfiguration)
	}
	return nil
}

// setAll writes each key then saves once.
func (s *SettingsService) setAll(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		if err := s.configStore.Set(k, values[k]); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return s.configStore.Save()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

// getExplicitInt is getInt for keys where a stored zero is meaningful.
func (s *SettingsService) getExplicitInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
