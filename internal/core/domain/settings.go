package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// Capabilities returns what the provider's API offers.
func (p AIProvider) Capabilities() []Capability {
	switch p {
	case AIProviderOllama:
		return []Capability{CapabilityChat, CapabilityCompletion, CapabilityEmbedding}
	case AIProviderOpenAI:
		return []Capability{CapabilityChat, CapabilityCompletion, CapabilityEmbedding, CapabilityImage}
	case AIProviderAnthropic:
		return []Capability{CapabilityChat, CapabilityCompletion}
	case AIProviderGemini:
		return []Capability{CapabilityChat, CapabilityCompletion, CapabilityEmbedding}
	default:
		return nil
	}
}

// ProviderSettings holds the connection details for one model.
type ProviderSettings struct {
	// Provider is the service provider.
	Provider AIProvider

	// Model is the model name.
	Model string

	// BaseURL is the API endpoint (empty = provider default).
	BaseURL string

	// APIKey is the API key (for cloud providers).
	APIKey string
}

// IsConfigured returns true if the provider is set up.
func (s ProviderSettings) IsConfigured() bool {
	if !s.Provider.IsValid() {
		return false
	}
	if s.Provider.RequiresAPIKey() && s.APIKey == "" {
		return false
	}
	return true
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	ProviderSettings

	// Dimensions overrides the known dimensions of Model (0 = lookup).
	Dimensions int

	// UseCase is the task type for document embeddings.
	UseCase EmbeddingUseCase
}

// ResolvedDimensions returns the configured or known vector size for the model.
func (e EmbeddingSettings) ResolvedDimensions() int {
	if e.Dimensions > 0 {
		return e.Dimensions
	}
	return EmbeddingDimensions()[e.Model]
}

// LLMSettings holds chat/completion provider configuration.
type LLMSettings struct {
	ProviderSettings
}

// TokenizerKind selects the tokenizer used for chunk length measurement.
type TokenizerKind string

// Available tokenizers.
const (
	// TokenizerWords splits on whitespace, attaching punctuation to words.
	TokenizerWords TokenizerKind = "words"

	// TokenizerCL100K is the cl100k_base BPE encoding.
	TokenizerCL100K TokenizerKind = "cl100k_base"
)

// IsValid returns true if the tokenizer is recognised.
func (k TokenizerKind) IsValid() bool {
	return k == TokenizerWords || k == TokenizerCL100K
}

// ChunkerKind selects how documents are cut into chunks.
type ChunkerKind string

// Available chunkers.
const (
	// ChunkerTokens cuts fixed-size token windows.
	ChunkerTokens ChunkerKind = "tokens"

	// ChunkerMarkdown cuts markdown on block and heading boundaries.
	ChunkerMarkdown ChunkerKind = "markdown"
)

// IsValid returns true if the chunker is recognised.
func (k ChunkerKind) IsValid() bool {
	return k == ChunkerTokens || k == ChunkerMarkdown
}

// Processor returns the post-processor name that implements the chunker.
func (k ChunkerKind) Processor() string {
	if k == ChunkerMarkdown {
		return "markdown"
	}
	return "chunker"
}

// RetrievalSettings holds chunking, embedding and query configuration.
type RetrievalSettings struct {
	// ChunkSize is the target chunk length in tokens (0 = derive from model context).
	ChunkSize int

	// ChunkOverlap is the number of tokens shared by consecutive chunks.
	ChunkOverlap int

	// Concurrency bounds in-flight embedding calls.
	Concurrency int

	// BatchSize caps inputs per embedding call (0 = provider maximum).
	BatchSize int

	// MinScore drops results scoring below this similarity.
	MinScore float64

	// Tokenizer selects the length measure for chunks.
	Tokenizer TokenizerKind

	// Chunker selects the chunking strategy.
	Chunker ChunkerKind
}

// CacheSettings holds embedding cache configuration.
type CacheSettings struct {
	// Size is the maximum number of vectors held in memory.
	Size int

	// TTL evicts entries older than this (0 = never).
	TTL time.Duration

	// Persist enables the on-disk cache tier.
	Persist bool

	// PersistSize caps the vectors kept on disk (0 = unbounded).
	PersistSize int
}

// WorkspaceSettings locates the document corpus.
type WorkspaceSettings struct {
	// Path is the workspace root directory.
	Path string

	// Extensions lists file extensions treated as plain text.
	Extensions []string
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// LLM holds chat/completion provider settings.
	LLM LLMSettings

	// Retrieval holds pipeline settings.
	Retrieval RetrievalSettings

	// Cache holds embedding cache settings.
	Cache CacheSettings

	// Workspace holds corpus settings.
	Workspace WorkspaceSettings
}

// Defaults applied by DefaultAppSettings.
const (
	DefaultChunkTokens  = 256
	DefaultConcurrency  = 4
	DefaultCacheSize    = 4096
	DefaultPersistSize  = 100000
	maxDerivedChunkSize = 2048
)

// DefaultAppSettings returns settings with sensible defaults.
// AI providers are left unconfigured; the workspace defaults to the
// current directory.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{UseCase: UseCaseRetrievalDocument},
		Retrieval: RetrievalSettings{
			ChunkSize:    0,
			ChunkOverlap: 0,
			Concurrency:  DefaultConcurrency,
			BatchSize:    0,
			MinScore:     0,
			Tokenizer:    TokenizerWords,
			Chunker:      ChunkerTokens,
		},
		Cache: CacheSettings{
			Size:        DefaultCacheSize,
			Persist:     true,
			PersistSize: DefaultPersistSize,
		},
		Workspace: WorkspaceSettings{
			Path:       ".",
			Extensions: []string{".txt", ".md"},
		},
	}
}

// DefaultChunkSize derives a chunk size from a model context length.
// A quarter of the context leaves room for several chunks per prompt.
func DefaultChunkSize(contextLength int) int {
	if contextLength <= 0 {
		return DefaultChunkTokens
	}
	size := contextLength / 4
	if size < 1 {
		size = 1
	}
	return min(size, maxDerivedChunkSize)
}

// EffectiveChunkSize returns ChunkSize, deriving it from contextLength when unset.
func (r RetrievalSettings) EffectiveChunkSize(contextLength int) int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize(contextLength)
}

// ChunkingFingerprint identifies the settings that determine chunk
// boundaries. Chunks cut under a different fingerprint must be re-cut.
func (r RetrievalSettings) ChunkingFingerprint(contextLength int) string {
	chunker := r.Chunker
	if chunker == "" {
		chunker = ChunkerTokens
	}
	return fmt.Sprintf("%s/%s/%d/%d", chunker, r.Tokenizer, r.EffectiveChunkSize(contextLength), r.ChunkOverlap)
}

// Validate checks the retrieval settings are consistent.
func (r RetrievalSettings) Validate() error {
	if r.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size must not be negative", ErrInvalidConfiguration)
	}
	if r.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative", ErrInvalidConfiguration)
	}
	if r.ChunkSize > 0 && r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be less than chunk size %d",
			ErrInvalidConfiguration, r.ChunkOverlap, r.ChunkSize)
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfiguration)
	}
	if r.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative", ErrInvalidConfiguration)
	}
	if r.MinScore < -1 || r.MinScore > 1 {
		return fmt.Errorf("%w: min score %.2f outside [-1, 1]", ErrInvalidConfiguration, r.MinScore)
	}
	if !r.Tokenizer.IsValid() {
		return fmt.Errorf("%w: tokenizer %q", ErrUnsupportedType, r.Tokenizer)
	}
	if r.Chunker != "" && !r.Chunker.IsValid() {
		return fmt.Errorf("%w: chunker %q", ErrUnsupportedType, r.Chunker)
	}
	return nil
}

// Validate checks all settings needed to build a pipeline.
func (s AppSettings) Validate() error {
	if err := s.Retrieval.Validate(); err != nil {
		return err
	}
	if s.Cache.Size <= 0 {
		return fmt.Errorf("%w: cache size must be positive", ErrInvalidConfiguration)
	}
	if s.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache ttl must not be negative", ErrInvalidConfiguration)
	}
	if s.Cache.PersistSize < 0 {
		return fmt.Errorf("%w: cache persist size must not be negative", ErrInvalidConfiguration)
	}
	return nil
}

// AllProviders returns every supported provider.
func AllProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "text-embedding-004",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.0-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004":   768,
		"gemini-embedding-001": 3072,
	}
}

// ContextLengths returns input token limits for known embedding models.
func ContextLengths() map[string]int {
	return map[string]int{
		"nomic-embed-text":       8192,
		"mxbai-embed-large":      512,
		"all-minilm":             256,
		"text-embedding-3-small": 8191,
		"text-embedding-3-large": 8191,
		"text-embedding-ada-002": 8191,
		"text-embedding-004":     2048,
		"gemini-embedding-001":   2048,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config for extensibility - new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	// Key is processor name, value is processor-specific config.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the chunker pipeline configuration from retrieval
// settings. The selected chunker runs first; metadata then copies document
// attributes onto each chunk.
func PipelineConfigFor(r RetrievalSettings, contextLength int) PipelineConfig {
	chunker := r.Chunker.Processor()
	return PipelineConfig{
		Processors: []string{chunker, "metadata"},
		ProcessorConfigs: map[string]map[string]any{
			chunker: {
				"chunk_size": r.EffectiveChunkSize(contextLength),
				"overlap":    r.ChunkOverlap,
			},
			"metadata": {
				"keys": []string{"format", "mime_type"},
			},
		},
	}
}
