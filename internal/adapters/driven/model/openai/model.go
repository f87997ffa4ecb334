// Package openai provides a model adapter for the OpenAI API.
// One Model serves embeddings, chat, completion and image generation;
// its descriptor advertises whichever the configured model supports.
package openai

import (
	"context"
	"encoding/base64"
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
	_ driven.ImageModel      = (*Model)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 120 * time.Second

	// maxEmbeddingInputs is the API limit on inputs per embeddings call.
	maxEmbeddingInputs = 2048
)

// Config holds configuration for the OpenAI adapter.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the model name (required).
	Model string

	// Capabilities overrides the capabilities inferred from the model name.
	Capabilities []domain.Capability

	// Dimensions overrides the known dimensions of an embedding model.
	// Sent to the API for text-embedding-3-* models.
	Dimensions int

	// UseCase is recorded on the descriptor; OpenAI has no task types.
	UseCase domain.EmbeddingUseCase

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Retry bounds adapter retries.
	Retry httpapi.RetryPolicy

	// Limiter throttles requests (default: ratelimit.ForProvider).
	Limiter *ratelimit.Limiter
}

// Model talks to one OpenAI model.
type Model struct {
	client *httpapi.Client
	desc   domain.ModelDescriptor
	// sendDimensions is true when the API accepts a dimensions parameter.
	sendDimensions bool
}

// New creates an OpenAI model adapter.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai API key is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: openai model is required", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = capabilitiesFor(cfg.Model)
	}
	desc := domain.ModelDescriptor{
		Name:          cfg.Model,
		Provider:      domain.AIProviderOpenAI,
		Capabilities:  caps,
		ContextLength: domain.ContextLengths()[cfg.Model],
	}
	if desc.Supports(domain.CapabilityEmbedding) {
		desc.Dimensions = cfg.Dimensions
		if desc.Dimensions == 0 {
			desc.Dimensions = domain.EmbeddingDimensions()[cfg.Model]
		}
		desc.MaxBatchSize = maxEmbeddingInputs
		desc.UseCase = cfg.UseCase
	}

	return &Model{
		client: httpapi.New(httpapi.Config{
			Provider: domain.AIProviderOpenAI,
			BaseURL:  cfg.BaseURL,
			Headers:  map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			Timeout:  cfg.Timeout,
			Retry:    cfg.Retry,
			Limiter:  cfg.Limiter,
		}),
		desc:           desc,
		sendDimensions: cfg.Dimensions > 0 && strings.HasPrefix(cfg.Model, "text-embedding-3"),
	}, nil
}

// capabilitiesFor infers capabilities from well-known model name families.
func capabilitiesFor(model string) []domain.Capability {
	switch {
	case strings.HasPrefix(model, "text-embedding"):
		return []domain.Capability{domain.CapabilityEmbedding}
	case strings.HasPrefix(model, "dall-e"), strings.HasPrefix(model, "gpt-image"):
		return []domain.Capability{domain.CapabilityImage}
	default:
		return []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion}
	}
}

// Descriptor returns the model descriptor.
func (m *Model) Descriptor() domain.ModelDescriptor {
	return m.desc
}

// embeddingRequest is the OpenAI /embeddings request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the OpenAI /embeddings response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

// Embed generates one vector per input.
// OpenAI rejects over-long inputs regardless of the truncation policy.
func (m *Model) Embed(ctx context.Context, req domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	if len(req.Inputs) == 0 {
		return &domain.EmbeddingResponse{Model: m.desc.Name}, nil
	}

	body := embeddingRequest{Model: m.desc.Name, Input: req.Inputs}
	if m.sendDimensions {
		body.Dimensions = m.desc.Dimensions
	}

	var resp embeddingResponse
	if err := m.client.Post(ctx, m.desc.Name, "/embeddings", body, &resp); err != nil {
		return nil, err
	}

	// Order by index; the API does not promise input order.
	vectors := make([][]float32, len(req.Inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) || vectors[d.Index] != nil {
			return nil, httpapi.Malformed(domain.AIProviderOpenAI, m.desc.Name,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, httpapi.Malformed(domain.AIProviderOpenAI, m.desc.Name,
				fmt.Sprintf("missing embedding for input %d", i), nil)
		}
	}

	return &domain.EmbeddingResponse{
		Model:   m.desc.Name,
		Vectors: vectors,
		Usage:   domain.Usage{InputTokens: resp.Usage.PromptTokens},
	}, nil
}

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

// chatCompletionMsg is the OpenAI chat message format.
type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse is the OpenAI /chat/completions response format.
type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatCompletionMsg `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat conducts a multi-turn conversation.
func (m *Model) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	msgs := make([]chatCompletionMsg, len(req.Messages))
	for i, msg := range req.Messages {
		msgs[i] = chatCompletionMsg{Role: string(msg.Role), Content: msg.Content}
	}

	resp, err := m.chatCompletion(ctx, msgs, req.Options)
	if err != nil {
		return nil, err
	}
	choice := resp.Choices[0]
	return &domain.ChatResponse{
		Model:        m.desc.Name,
		Message:      domain.ChatMessage{Role: domain.RoleAssistant, Content: choice.Message.Content},
		FinishReason: choice.FinishReason,
		Usage:        domain.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}, nil
}

// Complete produces text for a single prompt as a one-message chat.
func (m *Model) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := m.chatCompletion(ctx, []chatCompletionMsg{{Role: string(domain.RoleUser), Content: req.Prompt}}, req.Options)
	if err != nil {
		return nil, err
	}
	choice := resp.Choices[0]
	return &domain.CompletionResponse{
		Model:        m.desc.Name,
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        domain.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (m *Model) chatCompletion(ctx context.Context, msgs []chatCompletionMsg, opts domain.GenerationOptions) (*chatCompletionResponse, error) {
	body := chatCompletionRequest{
		Model:       m.desc.Name,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.StopSequences,
	}

	var resp chatCompletionResponse
	if err := m.client.Post(ctx, m.desc.Name, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, httpapi.Malformed(domain.AIProviderOpenAI, m.desc.Name, "no response choices returned", nil)
	}
	return &resp, nil
}

// imageRequest is the OpenAI /images/generations request format.
type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// imageResponse is the OpenAI /images/generations response format.
type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateImage generates images for a prompt. Images come back inline as PNG.
func (m *Model) GenerateImage(ctx context.Context, req domain.ImageRequest) (*domain.ImageResponse, error) {
	body := imageRequest{
		Model:          m.desc.Name,
		Prompt:         req.Prompt,
		N:              max(req.Count, 1),
		Size:           req.Size,
		ResponseFormat: "b64_json",
	}

	var resp imageResponse
	if err := m.client.Post(ctx, m.desc.Name, "/images/generations", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, httpapi.Malformed(domain.AIProviderOpenAI, m.desc.Name, "no images returned", nil)
	}

	out := &domain.ImageResponse{Model: m.desc.Name}
	for _, d := range resp.Data {
		img := domain.Image{URL: d.URL}
		if d.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err != nil {
				return nil, httpapi.Malformed(domain.AIProviderOpenAI, m.desc.Name, "decode image", err)
			}
			img.Data = data
			img.MIMEType = "image/png"
		}
		out.Images = append(out.Images, img)
	}
	return out, nil
}

// Ping validates the service is reachable by checking the /models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (m *Model) Ping(ctx context.Context) error {
	return m.client.Get(ctx, m.desc.Name, "/models", nil)
}

// Close releases resources.
func (m *Model) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
