// Package anthropic provides a chat and completion adapter for the Anthropic API.
package anthropic

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
	_ driven.ChatModel       = (*Model)(nil)
	_ driven.CompletionModel = (*Model)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultTimeout   = 120 * time.Second
	DefaultMaxTokens = 1024

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic adapter.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model name (required).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Retry bounds adapter retries.
	Retry httpapi.RetryPolicy

	// Limiter throttles requests (default: ratelimit.ForProvider).
	Limiter *ratelimit.Limiter
}

// Model talks to one Anthropic model.
type Model struct {
	client *httpapi.Client
	desc   domain.ModelDescriptor
}

// New creates an Anthropic model adapter.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: anthropic model is required", domain.ErrInvalidConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Model{
		client: httpapi.New(httpapi.Config{
			Provider: domain.AIProviderAnthropic,
			BaseURL:  cfg.BaseURL,
			Headers: map[string]string{
				"x-api-key":         cfg.APIKey,
				"anthropic-version": anthropicVersion,
			},
			Timeout: cfg.Timeout,
			Retry:   cfg.Retry,
			Limiter: cfg.Limiter,
		}),
		desc: domain.ModelDescriptor{
			Name:         cfg.Model,
			Provider:     domain.AIProviderAnthropic,
			Capabilities: []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion},
		},
	}, nil
}

// Descriptor returns the model descriptor.
func (m *Model) Descriptor() domain.ModelDescriptor {
	return m.desc
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	StopSeqs    []string          `json:"stop_sequences,omitempty"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat conducts a multi-turn conversation.
// System messages are joined into the top-level system prompt.
func (m *Model) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var system []string
	var msgs []messagesMessage
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		msgs = append(msgs, messagesMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if len(msgs) == 0 {
		return nil, domain.NewProviderError(domain.KindInvalidRequest, domain.AIProviderAnthropic, m.desc.Name,
			fmt.Errorf("conversation has no user or assistant messages"))
	}

	text, resp, err := m.send(ctx, strings.Join(system, "\n\n"), msgs, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.ChatResponse{
		Model:        m.desc.Name,
		Message:      domain.ChatMessage{Role: domain.RoleAssistant, Content: text},
		FinishReason: resp.StopReason,
		Usage:        domain.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

// Complete produces text for a single prompt.
func (m *Model) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	msgs := []messagesMessage{{Role: string(domain.RoleUser), Content: req.Prompt}}
	text, resp, err := m.send(ctx, "", msgs, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.CompletionResponse{
		Model:        m.desc.Name,
		Text:         text,
		FinishReason: resp.StopReason,
		Usage:        domain.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

func (m *Model) send(ctx context.Context, system string, msgs []messagesMessage, opts domain.GenerationOptions) (string, *messagesResponse, error) {
	// Anthropic requires max_tokens to be set
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	body := messagesRequest{
		Model:       m.desc.Name,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: opts.Temperature,
		StopSeqs:    opts.StopSequences,
	}

	var resp messagesResponse
	if err := m.client.Post(ctx, m.desc.Name, "/v1/messages", body, &resp); err != nil {
		return "", nil, err
	}
	if len(resp.Content) == 0 {
		return "", nil, httpapi.Malformed(domain.AIProviderAnthropic, m.desc.Name, "no response content returned", nil)
	}

	// Concatenate all text content blocks
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), &resp, nil
}

// Ping validates the API key by listing models.
func (m *Model) Ping(ctx context.Context) error {
	return m.client.Get(ctx, m.desc.Name, "/v1/models", nil)
}

// Close releases resources.
func (m *Model) Close() error {
	return nil
}
