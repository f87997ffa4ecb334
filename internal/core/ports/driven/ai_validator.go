package driven

import "github.com/custodia-labs/markhor/internal/core/domain"

// AIConfigValidator checks provider settings before they are saved.
// Both methods build the adapter and ping it; an unconfigured provider
// is not an error.
type AIConfigValidator interface {
	ValidateEmbedding(config *domain.EmbeddingSettings) error
	ValidateLLM(config *domain.LLMSettings) error
}
