// Package cli provides the markhor command line interface.
//
// Commands drive the core through package-level ports. They are opened
// lazily from persisted settings before a command runs, so tests can
// inject doubles by setting the ports directly.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/app"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
	"github.com/custodia-labs/markhor/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

// Global flags.
var (
	verbose       bool
	jsonOutput    bool
	configDir     string
	workspacePath string
)

// Ports driven by the commands.
var (
	retrievalService driving.RetrievalService
	answerService    driving.AnswerService
	settingsService  driving.SettingsService
	modelRegistry    driving.ModelRegistry
	workspace        driven.Workspace
	workspaceWatcher driven.WorkspaceWatcher

	// persist saves derived state after a mutating command; may be nil.
	persist func(ctx context.Context) error
)

// opened is the pipeline Execute must close, if setup built one.
var opened *app.App

// needsAnnotation tells setup which ports a command uses.
const (
	needsAnnotation = "markhor/needs"
	needsPipeline   = "pipeline"
	needsSettings   = "settings"
)

var pipelineAnnotation = map[string]string{needsAnnotation: needsPipeline}

var rootCmd = &cobra.Command{
	Use:   "markhor",
	Short: "Semantic retrieval over a local workspace",
	Long: `Markhor chunks the text documents of a workspace, embeds the chunks with
a configured model provider, and answers "which passages are most relevant
to this query" from a local similarity index.

Providers: Ollama (local), OpenAI, Gemini, and Anthropic (chat only).
Run 'markhor settings embedding' to get started.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "print pipeline debug logs to stderr")
	flags.BoolVar(&jsonOutput, "json", false, "output results as JSON")
	flags.StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.markhor)")
	flags.StringVarP(&workspacePath, "workspace", "w", "", "workspace root (overrides settings)")
}

// Execute runs the root command and closes anything it opened.
func Execute(ctx context.Context) error {
	defer closeOpened()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	switch cmd.Annotations[needsAnnotation] {
	case needsPipeline:
		if retrievalService != nil {
			return nil
		}
		a, err := app.Open(cmd.Context(), options())
		if err != nil {
			return err
		}
		opened = a
		retrievalService = a.Pipeline
		answerService = a.Answer
		settingsService = a.Settings
		modelRegistry = a.Registry
		workspace = a.Workspace
		workspaceWatcher = a.Workspace
		persist = a.Save
	case needsSettings:
		if settingsService != nil {
			return nil
		}
		svc, err := app.OpenSettings(options())
		if err != nil {
			return err
		}
		settingsService = svc
	}
	return nil
}

func options() app.Options {
	return app.Options{ConfigDir: configDir, WorkspacePath: workspacePath}
}

func closeOpened() {
	if opened == nil {
		return
	}
	if err := opened.Close(); err != nil {
		logger.Warn("closing: %v", err)
	}
	opened = nil
	retrievalService, answerService, settingsService, modelRegistry = nil, nil, nil, nil
	workspace, workspaceWatcher, persist = nil, nil, nil
	_ = logger.Sync()
}

// save runs persist when one is configured.
func save(ctx context.Context) error {
	if persist == nil {
		return nil
	}
	if err := persist(ctx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
