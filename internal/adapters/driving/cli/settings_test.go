package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

func TestSettingsShow(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Embedding = domain.EmbeddingSettings{
		ProviderSettings: domain.ProviderSettings{
			Provider: domain.AIProviderOpenAI, Model: "text-embedding-3-small", APIKey: "sk-abcdefgh1234",
		},
		UseCase: domain.UseCaseRetrievalDocument,
	}

	out, err := execute(t, "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Provider: OpenAI (cloud)")
	assert.Contains(t, out, "API Key: sk-a...1234")
	assert.Contains(t, out, "Dimensions: 1536")
	assert.Contains(t, out, "Chunk size: derived from model")
	assert.Contains(t, out, "Tokenizer: words")
	assert.Contains(t, out, "Chunker: tokens")
	assert.Contains(t, out, "Extensions: .txt, .md")
	assert.Contains(t, out, "Configuration is valid.")
	assert.NotContains(t, out, "sk-abcdefgh1234")
}

func TestSettingsShow_ValidationWarning(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.validateErr = domain.ErrInvalidConfiguration

	out, err := execute(t, "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "[LLM]\n  Status: not configured")
	assert.Contains(t, out, "Warning: invalid configuration")
}

func TestSettingsEmbedding_Local(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	rootCmd.SetIn(strings.NewReader("1\n\nhttp://gpu:11434\n"))

	out, err := execute(t, "settings", "embedding")

	require.NoError(t, err)
	got := ts.settings.settings.Embedding
	assert.Equal(t, domain.AIProviderOllama, got.Provider)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, "http://gpu:11434", got.BaseURL)
	assert.Equal(t, domain.UseCaseRetrievalDocument, got.UseCase)
	assert.Contains(t, out, "Validating configuration... OK")
}

func TestSettingsEmbedding_CloudNeedsKey(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("2\n\n\n"))
	_, err := execute(t, "settings", "embedding")
	assert.EqualError(t, err, "API key is required for this provider")

	rootCmd.SetIn(strings.NewReader("2\ntext-embedding-3-large\nsk-test-key-1234\n"))
	_, err = execute(t, "settings", "embedding")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-key-1234", ts.settings.settings.Embedding.APIKey)
	assert.Equal(t, "text-embedding-3-large", ts.settings.settings.Embedding.Model)
}

func TestSettingsEmbedding_UnknownModelAsksDimensions(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("1\ncustom-embed\n\n384\n"))
	_, err := execute(t, "settings", "embedding")
	require.NoError(t, err)
	assert.Equal(t, 384, ts.settings.settings.Embedding.Dimensions)

	rootCmd.SetIn(strings.NewReader("1\ncustom-embed\n\nlots\n"))
	_, err = execute(t, "settings", "embedding")
	assert.EqualError(t, err, "dimensions are required for unknown embedding models")
}

func TestSettingsEmbedding_ValidationFails(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.setErr = domain.ErrUnavailable
	rootCmd.SetIn(strings.NewReader("1\n\n\n"))

	out, err := execute(t, "settings", "embedding")

	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Contains(t, out, "Validating configuration... FAILED")
}

func TestSettingsLLM(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	rootCmd.SetIn(strings.NewReader("3\n\nsk-ant-test-9999\n"))

	out, err := execute(t, "settings", "llm")

	require.NoError(t, err)
	got := ts.settings.settings.LLM
	assert.Equal(t, domain.AIProviderAnthropic, got.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", got.Model)
	assert.Equal(t, "sk-ant-test-9999", got.APIKey)
	assert.Contains(t, out, "LLM provider configured: Anthropic (cloud)")
}

func TestSettingsRetrieval_OnlyChangedFlags(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.settings.settings.Retrieval.BatchSize = 32

	_, err := execute(t, "settings", "retrieval", "--chunk-size", "128", "--chunk-overlap", "16",
		"--min-score", "0.3", "--tokenizer", "cl100k_base", "--chunker", "markdown")

	require.NoError(t, err)
	got := ts.settings.settings.Retrieval
	assert.Equal(t, 128, got.ChunkSize)
	assert.Equal(t, 16, got.ChunkOverlap)
	assert.InDelta(t, 0.3, got.MinScore, 1e-9)
	assert.Equal(t, domain.TokenizerCL100K, got.Tokenizer)
	assert.Equal(t, domain.ChunkerMarkdown, got.Chunker)
	assert.Equal(t, 32, got.BatchSize)
	assert.Equal(t, domain.DefaultConcurrency, got.Concurrency)
}

func TestSettingsRetrieval_Invalid(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "settings", "retrieval", "--chunk-size", "10", "--chunk-overlap", "10")

	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestSettingsWorkspace(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	dir := t.TempDir()

	out, err := execute(t, "settings", "workspace", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, ts.settings.settings.Workspace.Path)
	assert.Contains(t, out, "Workspace set to")

	_, err = execute(t, "settings", "workspace", dir+"/missing")
	assert.ErrorContains(t, err, "is not a directory")
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 1},
		{"2", 2},
		{"0", 1},
		{"9", 1},
		{"x", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseChoice(tt.input, 3, 1), tt.input)
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-1...wxyz", maskAPIKey("sk-1234567890wxyz"))
}
