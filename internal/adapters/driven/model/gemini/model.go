// Package gemini provides a model adapter for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

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
	DefaultTimeout = 120 * time.Second

	// maxEmbeddingInputs is the API limit on contents per batch embed call.
	maxEmbeddingInputs = 100
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// modelsAPI is the subset of genai.Models the adapter calls.
type modelsAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// Config holds configuration for the Gemini adapter.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Model is the model name (required).
	Model string

	// Capabilities overrides the capabilities inferred from the model name.
	Capabilities []domain.Capability

	// Dimensions requests a reduced output dimensionality.
	Dimensions int

	// UseCase selects the default embedding task type.
	UseCase domain.EmbeddingUseCase

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// Limiter throttles requests (default: ratelimit.ForProvider).
	Limiter *ratelimit.Limiter
}

// Model talks to one Gemini model.
type Model struct {
	models  modelsAPI
	limiter *ratelimit.Limiter
	desc    domain.ModelDescriptor
	// outputDims is sent as OutputDimensionality when non-zero.
	outputDims int32
}

// New creates a Gemini model adapter.
func New(ctx context.Context, cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: gemini model is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini client: %v", domain.ErrInvalidConfiguration, err)
	}
	return newModel(client.Models, cfg), nil
}

func newModel(models modelsAPI, cfg Config) *Model {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.ForProvider(domain.AIProviderGemini)
	}

	caps := cfg.Capabilities
	if len(caps) == 0 {
		caps = capabilitiesFor(cfg.Model)
	}
	desc := domain.ModelDescriptor{
		Name:          cfg.Model,
		Provider:      domain.AIProviderGemini,
		Capabilities:  caps,
		ContextLength: domain.ContextLengths()[cfg.Model],
	}
	m := &Model{models: models, limiter: limiter}
	if desc.Supports(domain.CapabilityEmbedding) {
		desc.Dimensions = domain.EmbeddingDimensions()[cfg.Model]
		if cfg.Dimensions > 0 {
			desc.Dimensions = cfg.Dimensions
			m.outputDims = int32(cfg.Dimensions) //nolint:gosec // dimensions are small
		}
		desc.MaxBatchSize = maxEmbeddingInputs
		desc.UseCase = cfg.UseCase
	}
	m.desc = desc
	return m
}

// capabilitiesFor infers capabilities from well-known model name families.
func capabilitiesFor(model string) []domain.Capability {
	if strings.Contains(model, "embedding") {
		return []domain.Capability{domain.CapabilityEmbedding}
	}
	return []domain.Capability{domain.CapabilityChat, domain.CapabilityCompletion}
}

// Descriptor returns the model descriptor.
func (m *Model) Descriptor() domain.ModelDescriptor {
	return m.desc
}

// TaskType returns the Gemini task type for an embedding use case.
// UseCaseGeneral and unknown use cases map to the empty string.
func TaskType(uc domain.EmbeddingUseCase) string {
	switch uc {
	case domain.UseCaseSimilarity:
		return "SEMANTIC_SIMILARITY"
	case domain.UseCaseRetrievalDocument:
		return "RETRIEVAL_DOCUMENT"
	case domain.UseCaseRetrievalQuery:
		return "RETRIEVAL_QUERY"
	case domain.UseCaseClassification:
		return "CLASSIFICATION"
	case domain.UseCaseClustering:
		return "CLUSTERING"
	case domain.UseCaseQuestionAnswering:
		return "QUESTION_ANSWERING"
	case domain.UseCaseFactVerification:
		return "FACT_VERIFICATION"
	case domain.UseCaseCodeRetrievalQuery:
		return "CODE_RETRIEVAL_QUERY"
	default:
		return ""
	}
}

// Embed generates one vector per input in a single batch call.
// The request use case takes precedence over the configured one.
func (m *Model) Embed(ctx context.Context, req domain.EmbeddingRequest) (*domain.EmbeddingResponse, error) {
	if len(req.Inputs) == 0 {
		return &domain.EmbeddingResponse{Model: m.desc.Name}, nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, httpapi.TransportError(domain.AIProviderGemini, m.desc.Name, err)
	}

	contents := make([]*genai.Content, len(req.Inputs))
	for i, in := range req.Inputs {
		contents[i] = &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: in}}}
	}

	useCase := req.UseCase
	if useCase == "" {
		useCase = m.desc.UseCase
	}
	config := &genai.EmbedContentConfig{TaskType: TaskType(useCase)}
	if m.outputDims > 0 {
		dims := m.outputDims
		config.OutputDimensionality = &dims
	}

	resp, err := m.models.EmbedContent(ctx, m.desc.Name, contents, config)
	if err != nil {
		return nil, m.classify(err)
	}
	if len(resp.Embeddings) != len(req.Inputs) {
		return nil, httpapi.Malformed(domain.AIProviderGemini, m.desc.Name,
			fmt.Sprintf("got %d embeddings for %d inputs", len(resp.Embeddings), len(req.Inputs)), nil)
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, httpapi.Malformed(domain.AIProviderGemini, m.desc.Name,
				fmt.Sprintf("empty embedding for input %d", i), nil)
		}
		vectors[i] = e.Values
	}
	return &domain.EmbeddingResponse{Model: m.desc.Name, Vectors: vectors}, nil
}

// Chat conducts a multi-turn conversation.
// System messages become the system instruction; assistant turns use the "model" role.
func (m *Model) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	system, contents := toContents(req.Messages)
	if len(contents) == 0 {
		return nil, domain.NewProviderError(domain.KindInvalidRequest, domain.AIProviderGemini, m.desc.Name,
			errors.New("conversation has no user or assistant messages"))
	}

	text, reason, usage, err := m.generate(ctx, system, contents, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.ChatResponse{
		Model:        m.desc.Name,
		Message:      domain.ChatMessage{Role: domain.RoleAssistant, Content: text},
		FinishReason: reason,
		Usage:        usage,
	}, nil
}

// Complete produces text for a single prompt.
func (m *Model) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	contents := []*genai.Content{{Role: roleUser, Parts: []*genai.Part{{Text: req.Prompt}}}}
	text, reason, usage, err := m.generate(ctx, nil, contents, req.Options)
	if err != nil {
		return nil, err
	}
	return &domain.CompletionResponse{
		Model:        m.desc.Name,
		Text:         text,
		FinishReason: reason,
		Usage:        usage,
	}, nil
}

func (m *Model) generate(ctx context.Context, system *genai.Content, contents []*genai.Content, opts domain.GenerationOptions) (string, string, domain.Usage, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", "", domain.Usage{}, httpapi.TransportError(domain.AIProviderGemini, m.desc.Name, err)
	}

	resp, err := m.models.GenerateContent(ctx, m.desc.Name, contents, toConfig(system, opts))
	if err != nil {
		return "", "", domain.Usage{}, m.classify(err)
	}
	if len(resp.Candidates) == 0 {
		return "", "", domain.Usage{}, httpapi.Malformed(domain.AIProviderGemini, m.desc.Name, "no candidates returned", nil)
	}

	var usage domain.Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return resp.Text(), string(resp.Candidates[0].FinishReason), usage, nil
}

// toContents splits chat messages into a system instruction and conversation turns.
func toContents(msgs []domain.ChatMessage) (*genai.Content, []*genai.Content) {
	var system []*genai.Part
	var contents []*genai.Content
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleSystem:
			system = append(system, &genai.Part{Text: msg.Content})
		case domain.RoleAssistant:
			contents = append(contents, &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: system}, contents
}

// toConfig converts generation options; nil when nothing is set.
func toConfig(system *genai.Content, opts domain.GenerationOptions) *genai.GenerateContentConfig {
	if system == nil && opts.Temperature == nil && opts.MaxTokens == 0 && len(opts.StopSequences) == 0 {
		return nil
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		MaxOutputTokens:   int32(opts.MaxTokens), //nolint:gosec // token limits are small
		StopSequences:     opts.StopSequences,
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		config.Temperature = &t
	}
	return config
}

// Ping validates the API key by fetching the model metadata.
func (m *Model) Ping(ctx context.Context) error {
	if _, err := m.models.Get(ctx, m.desc.Name, nil); err != nil {
		return m.classify(err)
	}
	return nil
}

// Close releases resources.
func (m *Model) Close() error {
	return nil
}

func (m *Model) classify(err error) error {
	return classifyError(m.desc.Name, err)
}

// classifyError maps a genai failure onto a provider error.
// API errors are classified by status code; everything else is a transport failure.
func classifyError(model string, err error) *domain.ProviderError {
	apiErr, ok := asAPIError(err)
	if !ok {
		return httpapi.TransportError(domain.AIProviderGemini, model, err)
	}

	pe := &domain.ProviderError{
		Kind:       httpapi.KindForStatus(apiErr.Code),
		Provider:   domain.AIProviderGemini,
		Model:      model,
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
	}
	if pe.Kind == domain.KindRateLimited {
		pe.RetryAfter = retryDelay(apiErr.Details)
	}
	return pe
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

// retryDelay reads the google.rpc.RetryInfo retryDelay detail, e.g. "12s".
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "RetryInfo") {
			continue
		}
		s, _ := d["retryDelay"].(string)
		if delay, err := time.ParseDuration(s); err == nil && delay > 0 {
			return delay
		}
	}
	return 0
}
