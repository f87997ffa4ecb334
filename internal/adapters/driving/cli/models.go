package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:         "models",
	Short:       "List configured models and their capabilities",
	Args:        cobra.NoArgs,
	Annotations: pipelineAnnotation,
	RunE:        runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

type modelJSON struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	Dimensions   int      `json:"dimensions,omitempty"`
	UseCase      string   `json:"use_case,omitempty"`
}

func runModels(cmd *cobra.Command, _ []string) error {
	if modelRegistry == nil {
		return errors.New("model registry not configured")
	}

	descs := modelRegistry.Descriptors()
	out := make([]modelJSON, len(descs))
	for i, d := range descs {
		caps := make([]string, len(d.Capabilities))
		for j, c := range d.Capabilities {
			caps[j] = string(c)
		}
		out[i] = modelJSON{ID: d.ID(), Capabilities: caps, Dimensions: d.Dimensions, UseCase: string(d.UseCase)}
	}

	if jsonOutput {
		return printJSON(cmd, out)
	}
	if len(out) == 0 {
		cmd.Println("No models configured. Run 'markhor settings embedding'.")
		return nil
	}
	for _, m := range out {
		cmd.Printf("  %s [%s]", m.ID, strings.Join(m.Capabilities, ", "))
		if m.Dimensions > 0 {
			cmd.Printf(" %d dims", m.Dimensions)
		}
		cmd.Println()
	}
	return nil
}
