package driven

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// Model is the base contract every provider adapter implements.
// An adapter additionally implements one variant interface per capability
// its descriptor advertises.
//
// Implementations may include:
//   - OpenAI (chat, completion, embedding, image)
//   - Ollama (chat, completion, embedding)
//   - Anthropic (chat, completion)
//   - Gemini (chat, completion, embedding)
//
// Every failing call returns a *domain.ProviderError after the adapter
// exhausts its own retries.
type Model interface {
	// Descriptor returns what the model is and what it can do.
	Descriptor() domain.ModelDescriptor

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatModel holds multi-turn conversations.
type ChatModel interface {
	Model

	// Chat returns the assistant reply to the conversation.
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// CompletionModel completes a single prompt.
type CompletionModel interface {
	Model

	// Complete returns generated text for the prompt.
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error)
}

// EmbeddingModel turns text into vectors.
type EmbeddingModel interface {
	Model

	// Embed returns one vector per input, in input order.
	// Vector length must equal Descriptor().Dimensions.
	Embed(ctx context.Context, req domain.EmbeddingRequest) (*domain.EmbeddingResponse, error)
}

// ImageModel generates images from a prompt.
type ImageModel interface {
	Model

	// GenerateImage returns the generated images.
	GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error)
}

// ImplementsCapability reports whether m implements the variant interface for c.
func ImplementsCapability(m Model, c domain.Capability) bool {
	switch c {
	case domain.CapabilityChat:
		_, ok := m.(ChatModel)
		return ok
	case domain.CapabilityCompletion:
		_, ok := m.(CompletionModel)
		return ok
	case domain.CapabilityEmbedding:
		_, ok := m.(EmbeddingModel)
		return ok
	case domain.CapabilityImage:
		_, ok := m.(ImageModel)
		return ok
	default:
		return false
	}
}
