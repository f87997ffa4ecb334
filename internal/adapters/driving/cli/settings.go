package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

var settingsAnnotation = map[string]string{needsAnnotation: needsSettings}

// Retrieval flags.
var (
	settingsChunkSize    int
	settingsChunkOverlap int
	settingsConcurrency  int
	settingsBatchSize    int
	settingsMinScore     float64
	settingsTokenizer    string
	settingsChunker      string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure model providers, retrieval behaviour and the workspace.

Settings are stored in config.toml under the configuration directory.`,
	Annotations: settingsAnnotation,
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show current settings",
	Annotations: settingsAnnotation,
	RunE:        runSettingsShow,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:         "embedding",
	Short:       "Configure embedding provider",
	Long:        `Configure the provider that embeds chunks and queries.`,
	Annotations: settingsAnnotation,
	RunE:        runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:         "llm",
	Short:       "Configure LLM provider",
	Long:        `Configure the chat/completion provider used by 'markhor ask'.`,
	Annotations: settingsAnnotation,
	RunE:        runSettingsLLM,
}

var settingsRetrievalCmd = &cobra.Command{
	Use:   "retrieval",
	Short: "Configure chunking and query behaviour",
	Long: `Update retrieval settings. Only the flags given are changed.

Changing chunk size, overlap, tokenizer or chunker re-chunks documents on the
next index.`,
	Args:        cobra.NoArgs,
	Annotations: settingsAnnotation,
	RunE:        runSettingsRetrieval,
}

var settingsWorkspaceCmd = &cobra.Command{
	Use:         "workspace [path]",
	Short:       "Set the workspace root directory",
	Args:        cobra.ExactArgs(1),
	Annotations: settingsAnnotation,
	RunE:        runSettingsWorkspace,
}

func init() {
	flags := settingsRetrievalCmd.Flags()
	flags.IntVar(&settingsChunkSize, "chunk-size", 0, "chunk length in tokens (0 = derive from model)")
	flags.IntVar(&settingsChunkOverlap, "chunk-overlap", 0, "tokens shared by consecutive chunks")
	flags.IntVar(&settingsConcurrency, "concurrency", domain.DefaultConcurrency, "in-flight embedding calls")
	flags.IntVar(&settingsBatchSize, "batch-size", 0, "inputs per embedding call (0 = provider maximum)")
	flags.Float64Var(&settingsMinScore, "min-score", 0, "drop results scoring below this similarity")
	flags.StringVar(&settingsTokenizer, "tokenizer", string(domain.TokenizerWords), "words or cl100k_base")
	flags.StringVar(&settingsChunker, "chunker", string(domain.ChunkerTokens), "tokens or markdown")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsRetrievalCmd)
	settingsCmd.AddCommand(settingsWorkspaceCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	printProvider(cmd, settings.Embedding.ProviderSettings)
	if dims := settings.Embedding.ResolvedDimensions(); dims > 0 {
		cmd.Printf("  Dimensions: %d\n", dims)
	}
	cmd.Printf("  Use case: %s\n", settings.Embedding.UseCase)
	cmd.Println()

	cmd.Println("[LLM]")
	printProvider(cmd, settings.LLM.ProviderSettings)
	cmd.Println()

	r := settings.Retrieval
	cmd.Println("[Retrieval]")
	if r.ChunkSize > 0 {
		cmd.Printf("  Chunk size: %d tokens\n", r.ChunkSize)
	} else {
		cmd.Println("  Chunk size: derived from model")
	}
	cmd.Printf("  Chunk overlap: %d tokens\n", r.ChunkOverlap)
	cmd.Printf("  Tokenizer: %s\n", r.Tokenizer)
	cmd.Printf("  Chunker: %s\n", r.Chunker)
	cmd.Printf("  Concurrency: %d\n", r.Concurrency)
	cmd.Printf("  Min score: %.2f\n", r.MinScore)
	cmd.Println()

	cmd.Println("[Workspace]")
	cmd.Printf("  Path: %s\n", settings.Workspace.Path)
	cmd.Printf("  Extensions: %s\n", strings.Join(settings.Workspace.Extensions, ", "))
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'markhor settings retrieval' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func printProvider(cmd *cobra.Command, p domain.ProviderSettings) {
	if !p.Provider.IsValid() {
		cmd.Println("  Status: not configured")
		return
	}
	cmd.Printf("  Provider: %s\n", p.Provider.Description())
	cmd.Printf("  Model: %s\n", p.Model)
	if p.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", p.BaseURL)
	}
	if p.Provider.RequiresAPIKey() {
		if p.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(p.APIKey))
		} else {
			cmd.Println("  API Key: (not set)")
		}
	}
	status := "configured"
	if !p.IsConfigured() {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	provider, err := promptProvider(cmd, reader, "Select Embedding Provider",
		domain.AllEmbeddingProviders(), domain.DefaultEmbeddingModels())
	if err != nil {
		return err
	}

	embedding := domain.EmbeddingSettings{ProviderSettings: provider, UseCase: domain.UseCaseRetrievalDocument}
	if domain.EmbeddingDimensions()[provider.Model] == 0 {
		cmd.Print("Enter embedding dimensions: ")
		dims, err := strconv.Atoi(readLine(reader))
		if err != nil || dims <= 0 {
			return errors.New("dimensions are required for unknown embedding models")
		}
		embedding.Dimensions = dims
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.SetEmbeddingSettings(embedding); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", provider.Provider.Description(), provider.Model)
	cmd.Println("Run 'markhor index' to embed the workspace.")
	return nil
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	provider, err := promptProvider(cmd, reader, "Select LLM Provider",
		domain.AllProviders(), domain.DefaultLLMModels())
	if err != nil {
		return err
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.SetLLMSettings(domain.LLMSettings{ProviderSettings: provider}); err != nil {
		cmd.Println("FAILED")
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n", provider.Provider.Description(), provider.Model)
	return nil
}

// promptProvider asks for a provider, model, base URL and API key.
func promptProvider(cmd *cobra.Command, reader *bufio.Reader, title string,
	providers []domain.AIProvider, defaults map[domain.AIProvider]string,
) (domain.ProviderSettings, error) {
	cmd.Println(title)
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	selected := domain.ProviderSettings{Provider: providers[idx-1]}

	defaultModel := defaults[selected.Provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	selected.Model = readLine(reader)
	if selected.Model == "" {
		selected.Model = defaultModel
	}

	if selected.Provider.IsLocal() {
		cmd.Print("Enter base URL [default]: ")
		selected.BaseURL = readLine(reader)
	}

	if selected.Provider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		selected.APIKey = readPassword(reader)
		cmd.Println()
		if selected.APIKey == "" {
			return selected, errors.New("API key is required for this provider")
		}
	}
	return selected, nil
}

func runSettingsRetrieval(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	r := settings.Retrieval
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		r.ChunkSize = settingsChunkSize
	}
	if flags.Changed("chunk-overlap") {
		r.ChunkOverlap = settingsChunkOverlap
	}
	if flags.Changed("concurrency") {
		r.Concurrency = settingsConcurrency
	}
	if flags.Changed("batch-size") {
		r.BatchSize = settingsBatchSize
	}
	if flags.Changed("min-score") {
		r.MinScore = settingsMinScore
	}
	if flags.Changed("tokenizer") {
		r.Tokenizer = domain.TokenizerKind(settingsTokenizer)
	}
	if flags.Changed("chunker") {
		r.Chunker = domain.ChunkerKind(settingsChunker)
	}

	if err := settingsService.SetRetrievalSettings(r); err != nil {
		return fmt.Errorf("failed to set retrieval settings: %w", err)
	}
	cmd.Println("Retrieval settings saved.")
	return nil
}

func runSettingsWorkspace(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	info, err := os.Stat(args[0])
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", args[0])
	}
	if err := settingsService.SetWorkspacePath(args[0]); err != nil {
		return fmt.Errorf("failed to set workspace: %w", err)
	}
	cmd.Printf("Workspace set to %s\n", args[0])
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo from a terminal, else a plain line from reader.
func readPassword(reader *bufio.Reader) string {
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) && reader.Buffered() == 0 {
		if password, err := term.ReadPassword(fd); err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
