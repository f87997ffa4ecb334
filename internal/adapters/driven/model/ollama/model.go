// Package ollama provides a model adapter for a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/markhor/internal/adapters/driven/model/httpapi"
	"github.com/custodia-labs/markhor/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// Ensure Model implements the interfaces.
var (
	_ driven.EmbeddingModel  = (*Model)(nil)
	_ driven.ChatModel       = (*Model)(nil)
	_ driven.CompletionModel = (*Model)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama adapter.
type Config struct {
	// BaseURL is the Ollama server URL (default: http://localhost:11434).
	BaseURL string

	// Model is the model name (required).
	Model string

	// Capabilities overrides the capabilities inferred from the model name.
	Capabilities []domain.Capability

	// Dimensions is the embedding size; required for models not in
	// domain.EmbeddingDimensions.
	Dimensions int

	// UseCase is recorded on the descriptor.
	UseCase domain.EmbeddingUseCase

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Retry bounds adapter retries.
	Retry httpapi.RetryPolicy

	// Limiter throttles requests (default: ratelimit.ForProvider).
	Limiter *ratelimit.Limiter
}

// Model talks to one Ollama model.
type Model struct {
	client *httpapi.Client
	desc   domain.ModelDescriptor
}

// New creates an Ollama model adapter.
func New(cfg Config) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama model is required", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = capabilitiesFor(cfg.Model, cfg.Dimensions)
	}
	desc := domain.ModelDescriptor{
		Name:          cfg.Model,
		Provider:      domain.AIProviderOllama,
		Capabilities:  caps,
		ContextLength: domain.ContextLengths()[cfg.Model],
	}
	if desc.Supports(domain.CapabilityEmbedding) {
		desc.Dimensions = cfg.Dimensions
		if desc.Dimensions == 0 {
			desc.Dimensions = domain.EmbeddingDimensions()[cfg.Model]
		}
		desc.UseCase = cfg.UseCase
	}

	return &Model{
		client: httpapi.New(httpapi.Config{
			Provider: domain.AIProviderOllama,
			BaseURL:  cfg.BaseURL,
			Timeout:  cfg.Timeout,
			Retry:    cfg.Retry,
			Limiter:  cfg.Limiter,
		}),
		desc: desc,
	}, nil
}

// capabilitiesFor treats known embedding models, names containing "embed",
// and models given explicit dimensions as embedding models.
func capabilitiesFor(model string, dims int) []domain.Capability {
	if _, known := domain.EmbeddingDimensions()[model]; known || dims > 0 || strings.Contains(model, "embed") {
		return []domain.Capability{domain.CapabilityEmbedding}
	}
	return []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion}
}

// Descriptor returns the model descriptor.
func (m *Model) Descriptor() domain.ModelDescriptor {
	return m.desc
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate *bool    `json:"truncate,omitempty"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

// Embed generates one vector per input.
// Ollama only truncates from the end; TruncateNone makes over-long inputs fail.
func (m *Model) Embed(ctx context.Context, req domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	if len(req.Inputs) == 0 {
		return &domain.EmbeddingResponse{Model: m.desc.Name}, nil
	}

	body := embedRequest{Model: m.desc.Name, Input: req.Inputs}
	if req.Truncation == domain.TruncateNone {
		off := false
		body.Truncate = &off
	}

	var resp embedResponse
	if err := m.client.Post(ctx, m.desc.Name, "/api/embed", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(req.Inputs) {
		return nil, httpapi.Malformed(domain.AIProviderOllama, m.desc.Name,
			fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Embeddings), len(req.Inputs)), nil)
	}

	return &domain.EmbeddingResponse{
		Model:   m.desc.Name,
		Vectors: resp.Embeddings,
		Usage:   domain.Usage{InputTokens: resp.PromptEvalCount},
	}, nil
}

// options are Ollama generation options.
type options struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func toOptions(o domain.GenerationOptions) *options {
	if o.MaxTokens == 0 && o.Temperature == nil && len(o.StopSequences) == 0 {
		return nil
	}
	return &options{NumPredict: o.MaxTokens, Temperature: o.Temperature, Stop: o.StopSequences}
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the Ollama /api/chat response format.
type chatResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Chat conducts a multi-turn conversation.
func (m *Model) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	msgs := make([]chatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		msgs[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	var resp chatResponse
	body := chatRequest{Model: m.desc.Name, Messages: msgs, Options: toOptions(req.Options)}
	if err := m.client.Post(ctx, m.desc.Name, "/api/chat", body, &resp); err != nil {
		return nil, err
	}

	return &domain.ChatResponse{
		Model:        m.desc.Name,
		Message:      domain.ChatMessage{Role: domain.RoleAssistant, Content: resp.Message.Content},
		FinishReason: resp.DoneReason,
		Usage:        domain.Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}, nil
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

// generateResponse is the Ollama /api/generate response format.
type generateResponse struct {
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete produces text for a single prompt.
func (m *Model) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	var resp generateResponse
	body := generateRequest{Model: m.desc.Name, Prompt: req.Prompt, Options: toOptions(req.Options)}
	if err := m.client.Post(ctx, m.desc.Name, "/api/generate", body, &resp); err != nil {
		return nil, err
	}

	return &domain.CompletionResponse{
		Model:        m.desc.Name,
		Text:         resp.Response,
		FinishReason: resp.DoneReason,
		Usage:        domain.Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
	}, nil
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
func (m *Model) Ping(ctx context.Context) error {
	return m.client.Get(ctx, m.desc.Name, "/api/tags", nil)
}

// Close releases resources.
func (m *Model) Close() error {
	return nil
}
