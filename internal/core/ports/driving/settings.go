package driving

import "github.com/custodia-labs/markhor/internal/core/domain"

// SettingsService loads and persists application settings.
type SettingsService interface {
	// Get returns the current settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// SetEmbeddingSettings configures the embedding provider.
	SetEmbeddingSettings(settings domain.EmbeddingSettings) error

	// SetLLMSettings configures the chat/completion provider.
	SetLLMSettings(settings domain.LLMSettings) error

	// SetRetrievalSettings configures chunking and query behaviour.
	// Returns domain.ErrInvalidConfiguration for inconsistent values.
	SetRetrievalSettings(settings domain.RetrievalSettings) error

	// SetWorkspacePath sets the workspace root directory.
	SetWorkspacePath(path string) error

	// Validate checks the current settings can build a pipeline.
	Validate() error
}
