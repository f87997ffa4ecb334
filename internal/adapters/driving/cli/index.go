package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/logger"
)

var indexRetry bool

var indexCmd = &cobra.Command{
	Use:   "index [document-id...]",
	Short: "Index workspace documents",
	Long: `Chunks, embeds and indexes workspace documents.

Without arguments every document in the workspace is indexed. Document IDs
are paths relative to the workspace root, for example notes/plan.md.
Documents whose current revision is already indexed are skipped.`,
	Annotations: pipelineAnnotation,
	RunE:        runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexRetry, "retry", false, "only re-embed chunks that previously failed")
	rootCmd.AddCommand(indexCmd)
}

// reportJSON is the JSON shape of an IndexReport.
type reportJSON struct {
	DocumentID  string            `json:"document_id"`
	Revision    uint64            `json:"revision"`
	Skipped     bool              `json:"skipped"`
	Invalidated int               `json:"invalidated"`
	Chunks      int               `json:"chunks"`
	Embedded    int               `json:"embedded"`
	Failures    map[string]string `json:"failures,omitempty"`
	Removed     bool              `json:"removed,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func toReportJSON(r *domain.IndexReport) reportJSON {
	out := reportJSON{
		DocumentID:  r.DocumentID,
		Revision:    r.Revision,
		Skipped:     r.Skipped,
		Invalidated: r.Invalidated,
		Chunks:      r.Chunks,
		Embedded:    r.Embedded,
		Removed:     r.Removed,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	if len(r.Failures) > 0 {
		out.Failures = make(map[string]string, len(r.Failures))
		for _, f := range r.Failures {
			out.Failures[f.ChunkID] = f.Err.Error()
		}
	}
	return out
}

func runIndex(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}
	ctx := cmd.Context()

	if indexRetry {
		scope := domain.RetrievalScope{DocumentIDs: args}
		n, err := retrievalService.RetryFailed(ctx, scope)
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
		cmd.Printf("Recovered %d chunks.\n", n)
		return save(ctx)
	}

	var reports []*domain.IndexReport
	if len(args) == 0 {
		all, err := retrievalService.IndexWorkspace(ctx)
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}
		reports = all
	} else {
		for _, id := range args {
			r, err := retrievalService.IndexDocument(ctx, id)
			if err != nil {
				return fmt.Errorf("index %s: %w", id, err)
			}
			reports = append(reports, r)
		}
	}

	if err := save(ctx); err != nil {
		return err
	}

	if jsonOutput {
		out := make([]reportJSON, len(reports))
		for i, r := range reports {
			out[i] = toReportJSON(r)
		}
		return printJSON(cmd, out)
	}
	printReports(cmd, reports)
	return nil
}

func printReports(cmd *cobra.Command, reports []*domain.IndexReport) {
	var indexed, skipped, embedded, failed, removed, errored int
	for _, r := range reports {
		switch {
		case r.Removed:
			removed++
			cmd.Printf("  %s: removed\n", r.DocumentID)
			continue
		case r.Err != nil:
			errored++
			cmd.Printf("  %s: skipped: %v\n", r.DocumentID, r.Err)
			continue
		case r.Skipped:
			skipped++
			logger.Debug("%s: up to date", r.DocumentID)
			continue
		case len(r.Failures) > 0:
			cmd.Printf("  %s (rev %d): %d/%d chunks embedded\n", r.DocumentID, r.Revision, r.Embedded, r.Chunks)
			for _, f := range r.Failures {
				cmd.Printf("      %s: %v\n", f.ChunkID, f.Err)
			}
		default:
			cmd.Printf("  %s (rev %d): %d chunks\n", r.DocumentID, r.Revision, r.Chunks)
		}
		indexed++
		embedded += r.Embedded
		failed += len(r.Failures)
	}

	cmd.Printf("Indexed %d documents (%d chunks embedded, %d failed), %d up to date.\n",
		indexed, embedded, failed, skipped)
	if removed > 0 {
		cmd.Printf("Removed %d documents no longer in the workspace.\n", removed)
	}
	if errored > 0 {
		cmd.Printf("Skipped %d documents that could not be read.\n", errored)
	}
	if failed > 0 {
		cmd.Println("Run 'markhor index --retry' to re-embed failed chunks.")
	}
}
