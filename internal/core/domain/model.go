package domain

import (
	"fmt"
	"slices"
)

// Capability is the axis along which model providers are distinguished.
type Capability string

// Available capabilities.
const (
	// CapabilityChat is multi-turn conversation.
	CapabilityChat Capability = "chat"

	// CapabilityCompletion is single-prompt text completion.
	CapabilityCompletion Capability = "completion"

	// CapabilityEmbedding is text to vector embedding.
	CapabilityEmbedding Capability = "embedding"

	// CapabilityImage is prompt to image generation.
	CapabilityImage Capability = "image"
)

// IsValid returns true if the capability is recognised.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityChat, CapabilityCompletion, CapabilityEmbedding, CapabilityImage:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c Capability) String() string {
	return string(c)
}

// AllCapabilities returns every capability in a fixed order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityChat,
		CapabilityCompletion,
		CapabilityEmbedding,
		CapabilityImage,
	}
}

// EmbeddingUseCase is the task an embedding model instance is tuned for.
// Providers such as Gemini produce different vectors per task type.
type EmbeddingUseCase string

// Known embedding use cases.
const (
	UseCaseGeneral            EmbeddingUseCase = "general"
	UseCaseSimilarity         EmbeddingUseCase = "similarity"
	UseCaseRetrievalDocument  EmbeddingUseCase = "retrieval_document"
	UseCaseRetrievalQuery     EmbeddingUseCase = "retrieval_query"
	UseCaseClassification     EmbeddingUseCase = "classification"
	UseCaseClustering         EmbeddingUseCase = "clustering"
	UseCaseQuestionAnswering  EmbeddingUseCase = "question_answering"
	UseCaseFactVerification   EmbeddingUseCase = "fact_verification"
	UseCaseCodeRetrievalQuery EmbeddingUseCase = "code_retrieval_query"
)

// ModelDescriptor describes one configured model.
// All embeddings stored in one similarity index must share the same
// dimensionality and should share the same descriptor.
type ModelDescriptor struct {
	// Name is the provider-side model name (e.g. "text-embedding-3-small").
	Name string

	// Provider is the service hosting the model.
	Provider AIProvider

	// Capabilities lists what the model can do.
	Capabilities []Capability

	// Dimensions is the embedding vector size. Required for embedding models.
	Dimensions int

	// ContextLength is the input limit in tokens (0 = unknown).
	ContextLength int

	// MaxBatchSize is the largest number of inputs per embedding call (0 = unbounded).
	MaxBatchSize int

	// UseCase is the embedding task this instance is configured for.
	UseCase EmbeddingUseCase
}

// ID returns the fully-qualified "provider/name" identifier.
func (d ModelDescriptor) ID() string {
	if d.Provider == "" {
		return d.Name
	}
	return string(d.Provider) + "/" + d.Name
}

// Supports reports whether the model advertises the capability.
func (d ModelDescriptor) Supports(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// Validate checks the descriptor is usable for registration.
func (d ModelDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidConfiguration)
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("%w: model %s advertises no capabilities", ErrInvalidConfiguration, d.ID())
	}
	for _, c := range d.Capabilities {
		if !c.IsValid() {
			return fmt.Errorf("%w: model %s has unknown capability %q", ErrInvalidConfiguration, d.ID(), c)
		}
	}
	if d.Supports(CapabilityEmbedding) && d.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding model %s requires positive dimensions", ErrInvalidConfiguration, d.ID())
	}
	if d.MaxBatchSize < 0 || d.ContextLength < 0 {
		return fmt.Errorf("%w: model %s has negative limits", ErrInvalidConfiguration, d.ID())
	}
	return nil
}

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    Role
	Content string
}

// GenerationOptions configures text generation behaviour.
type GenerationOptions struct {
	// Temperature controls randomness. Nil leaves the provider default.
	Temperature *float64

	// MaxTokens is the maximum number of tokens to generate (0 = provider default).
	MaxTokens int

	// StopSequences stop generation when encountered.
	StopSequences []string
}

// Usage reports token accounting returned by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatRequest is a multi-turn conversation request.
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Options  GenerationOptions
}

// ChatResponse is the assistant reply to a ChatRequest.
type ChatResponse struct {
	Model        string
	Message      ChatMessage
	FinishReason string
	Usage        Usage
}

// CompletionRequest is a single-prompt completion request.
type CompletionRequest struct {
	Model   string
	Prompt  string
	Options GenerationOptions
}

// CompletionResponse carries the generated text.
type CompletionResponse struct {
	Model        string
	Text         string
	FinishReason string
	Usage        Usage
}

// TruncationPolicy tells the provider what to do with over-long inputs.
type TruncationPolicy string

// Truncation policies.
const (
	// TruncateNone fails over-long inputs with InvalidRequest.
	TruncateNone TruncationPolicy = "none"

	// TruncateStart drops tokens from the beginning.
	TruncateStart TruncationPolicy = "start"

	// TruncateEnd drops tokens from the end.
	TruncateEnd TruncationPolicy = "end"
)

// EmbeddingRequest asks for one vector per input, in input order.
type EmbeddingRequest struct {
	Model      string
	Inputs     []string
	Truncation TruncationPolicy
	UseCase    EmbeddingUseCase
}

// EmbeddingResponse carries vectors aligned with EmbeddingRequest.Inputs.
type EmbeddingResponse struct {
	Model   string
	Vectors [][]float32
	Usage   Usage
}

// ImageRequest asks for generated images.
type ImageRequest struct {
	Model  string
	Prompt string

	// Size is provider-specific (e.g. "1024x1024").
	Size string

	// Count is the number of images (0 = 1).
	Count int
}

// Image is one generated image, either inline or by reference.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// ImageResponse carries the generated images.
type ImageResponse struct {
	Model  string
	Images []Image
}
