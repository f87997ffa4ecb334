package ai

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// ConfigValidator validates AI provider configurations by creating the
// adapter and pinging it.
type ConfigValidator struct {
	factory *Factory
}

// NewConfigValidator creates a new AI config validator.
func NewConfigValidator(factory *Factory) *ConfigValidator {
	if factory == nil {
		factory = NewFactory()
	}
	return &ConfigValidator{factory: factory}
}

// ValidateEmbedding validates an embedding configuration by pinging the provider.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	m, err := v.factory.EmbeddingModel(context.Background(), config)
	if err != nil || m == nil {
		return err
	}
	return ping(m)
}

// ValidateLLM validates an LLM configuration by pinging the provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	m, err := v.factory.LLMModel(context.Background(), config)
	if err != nil || m == nil {
		return err
	}
	return ping(m)
}
