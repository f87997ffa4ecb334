package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index the workspace and keep it current",
	Long: `Indexes the workspace, then re-indexes documents as they change on disk
until interrupted. Removed documents are dropped from the index.`,
	Args:        cobra.NoArgs,
	Annotations: pipelineAnnotation,
	RunE:        runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}
	if workspaceWatcher == nil {
		return errors.New("workspace watcher not configured")
	}
	ctx := cmd.Context()

	reports, err := retrievalService.IndexWorkspace(ctx)
	if err != nil {
		return fmt.Errorf("index failed: %w", err)
	}
	printReports(cmd, reports)
	if err := save(ctx); err != nil {
		return err
	}

	changes, err := workspaceWatcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	cmd.Println("Watching for changes (Ctrl+C to stop)...")

	for change := range changes {
		if err := applyChange(cmd, change); err != nil {
			logger.Warn("%s: %v", change.DocumentID, err)
			continue
		}
		if err := save(ctx); err != nil {
			logger.Warn("%v", err)
		}
	}
	return nil
}

func applyChange(cmd *cobra.Command, change driven.DocumentChange) error {
	ctx := cmd.Context()
	switch change.Kind {
	case driven.ChangeRemoved:
		if err := retrievalService.DocumentRemoved(ctx, change.DocumentID); err != nil {
			return err
		}
		cmd.Printf("  %s: removed\n", change.DocumentID)
	default:
		r, err := retrievalService.DocumentChanged(ctx, change.DocumentID)
		if err != nil {
			return err
		}
		if !r.Skipped {
			cmd.Printf("  %s (rev %d): %d chunks, %d failed\n", r.DocumentID, r.Revision, r.Chunks, len(r.Failures))
		}
	}
	return nil
}
