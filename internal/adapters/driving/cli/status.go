package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:         "status [document-id]",
	Short:       "Show the indexed state of a document",
	Args:        cobra.ExactArgs(1),
	Annotations: pipelineAnnotation,
	RunE:        runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type stateJSON struct {
	DocumentID     string    `json:"document_id"`
	Revision       uint64    `json:"revision"`
	Chunks         int       `json:"chunks"`
	Embedded       int       `json:"embedded"`
	FailedChunkIDs []string  `json:"failed_chunk_ids,omitempty"`
	IndexedAt      time.Time `json:"indexed_at"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	state, err := retrievalService.Status(cmd.Context(), args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s has not been indexed", args[0])
	}
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stateJSON{
			DocumentID:     state.DocumentID,
			Revision:       state.Revision,
			Chunks:         state.ChunkCount,
			Embedded:       state.Embedded,
			FailedChunkIDs: state.FailedChunkIDs,
			IndexedAt:      state.IndexedAt,
		})
	}

	cmd.Printf("Document:  %s\n", state.DocumentID)
	cmd.Printf("Revision:  %d\n", state.Revision)
	cmd.Printf("Chunks:    %d (%d embedded)\n", state.ChunkCount, state.Embedded)
	if n := len(state.FailedChunkIDs); n > 0 {
		cmd.Printf("Failed:    %d chunks awaiting retry\n", n)
	}
	if !state.IndexedAt.IsZero() {
		cmd.Printf("Indexed:   %s\n", state.IndexedAt.Local().Format(time.RFC3339))
	}
	return nil
}
