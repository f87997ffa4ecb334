package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:         "compact",
	Short:       "Reclaim space held by invalidated index entries",
	Args:        cobra.NoArgs,
	Annotations: pipelineAnnotation,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if retrievalService == nil {
			return errors.New("retrieval service not configured")
		}
		n := retrievalService.Compact()
		if err := save(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("Reclaimed %d entries.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
