// Package ai provides factory functions for creating model provider adapters
// and the registry that holds them.
package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/markhor/internal/adapters/driven/model/anthropic"
	"github.com/custodia-labs/markhor/internal/adapters/driven/model/gemini"
	"github.com/custodia-labs/markhor/internal/adapters/driven/model/ollama"
	"github.com/custodia-labs/markhor/internal/adapters/driven/model/openai"
	"github.com/custodia-labs/markhor/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/services"
	"github.com/custodia-labs/markhor/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Factory creates model adapters. Adapters for the same provider share one
// rate limiter, so throttling seen by one model holds back the others.
type Factory struct {
	mu       sync.Mutex
	limiters map[domain.AIProvider]*ratelimit.Limiter
}

// NewFactory creates a factory.
func NewFactory() *Factory {
	return &Factory{limiters: make(map[domain.AIProvider]*ratelimit.Limiter)}
}

func (f *Factory) limiter(p domain.AIProvider) *ratelimit.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[p]
	if !ok {
		l = ratelimit.ForProvider(p)
		f.limiters[p] = l
	}
	return l
}

// EmbeddingModel creates the embedding adapter described by settings.
// Returns nil if the provider is not configured.
func (f *Factory) EmbeddingModel(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingModel, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	caps := []domain.Capability{domain.CapabilityEmbedding}
	switch settings.Provider {
	case domain.AIProviderOllama:
		return embeddingModel(ollama.New(ollama.Config{
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Dimensions:   settings.ResolvedDimensions(),
			UseCase:      settings.UseCase,
			Limiter:      f.limiter(settings.Provider),
		}))

	case domain.AIProviderOpenAI:
		return embeddingModel(openai.New(openai.Config{
			APIKey:       settings.APIKey,
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Dimensions:   settings.Dimensions,
			UseCase:      settings.UseCase,
			Limiter:      f.limiter(settings.Provider),
		}))

	case domain.AIProviderGemini:
		return embeddingModel(gemini.New(ctx, gemini.Config{
			APIKey:       settings.APIKey,
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Dimensions:   settings.Dimensions,
			UseCase:      settings.UseCase,
			Limiter:      f.limiter(settings.Provider),
		}))

	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama, openai or gemini",
			domain.ErrUnsupportedType)

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// LLMModel creates the chat and completion adapter described by settings.
// Returns nil if the provider is not configured.
func (f *Factory) LLMModel(ctx context.Context, settings *domain.LLMSettings) (driven.Model, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	caps := []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion}
	switch settings.Provider {
	case domain.AIProviderOllama:
		return model(ollama.New(ollama.Config{
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Limiter:      f.limiter(settings.Provider),
		}))

	case domain.AIProviderOpenAI:
		return model(openai.New(openai.Config{
			APIKey:       settings.APIKey,
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Limiter:      f.limiter(settings.Provider),
		}))

	case domain.AIProviderAnthropic:
		return model(anthropic.New(anthropic.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: f.limiter(settings.Provider),
		}))

	case domain.AIProviderGemini:
		return model(gemini.New(ctx, gemini.Config{
			APIKey:       settings.APIKey,
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			Capabilities: caps,
			Limiter:      f.limiter(settings.Provider),
		}))

	default:
		return nil, fmt.Errorf("%w: LLM provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// Registry builds a model registry holding the configured embedding and
// LLM adapters. Unconfigured providers are skipped.
func (f *Factory) Registry(ctx context.Context, settings domain.AppSettings) (*services.ModelRegistry, error) {
	registry := services.NewModelRegistry()

	embedder, err := f.EmbeddingModel(ctx, &settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}
	if embedder != nil {
		if err := registry.Register(embedder.Descriptor(), embedder); err != nil {
			_ = embedder.Close()
			return nil, err
		}
	}

	llm, err := f.LLMModel(ctx, &settings.LLM)
	if err != nil {
		_ = registry.Close()
		return nil, fmt.Errorf("LLM model: %w", err)
	}
	if llm != nil {
		if err := registry.Register(llm.Descriptor(), llm); err != nil {
			_ = llm.Close()
			_ = registry.Close()
			return nil, err
		}
	}

	if embedder == nil && llm == nil {
		logger.Warn("No AI providers configured")
	}
	return registry, nil
}

// embeddingModel and model keep a failed constructor from returning a typed nil.
func embeddingModel(m driven.EmbeddingModel, err error) (driven.EmbeddingModel, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

func model(m driven.Model, err error) (driven.Model, error) {
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ping checks connectivity and closes the model.
func ping(m driven.Model) error {
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := m.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", m.Descriptor().ID(), err)
	}
	return nil
}
