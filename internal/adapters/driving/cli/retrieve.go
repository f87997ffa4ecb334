package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

const defaultK = 5

var (
	retrieveK    int
	retrieveDocs []string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Retrieve relevant passages",
	Long: `Embeds the query and returns the most similar indexed chunks.
Scores are cosine similarities; results below retrieval.min_score are dropped.`,
	Args:        cobra.ExactArgs(1),
	Annotations: pipelineAnnotation,
	RunE:        runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveK, "top", "k", defaultK, "number of passages to return")
	retrieveCmd.Flags().StringSliceVar(&retrieveDocs, "doc", nil, "restrict to these document IDs")
	rootCmd.AddCommand(retrieveCmd)
}

// passageJSON is the JSON shape of a RetrievedChunk.
type passageJSON struct {
	Rank       int     `json:"rank"`
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	Percentile float64 `json:"percentile"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Content    string  `json:"content"`
}

func toPassagesJSON(results []domain.RetrievedChunk) []passageJSON {
	out := make([]passageJSON, len(results))
	for i, r := range results {
		out[i] = passageJSON{
			Rank:       r.Rank + 1,
			DocumentID: r.Chunk.DocumentID,
			ChunkID:    r.Chunk.ID,
			Score:      r.Score,
			Percentile: r.Percentile,
			Start:      r.Chunk.Start,
			End:        r.Chunk.End,
			Content:    r.Chunk.Content,
		}
	}
	return out
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	scope := domain.RetrievalScope{DocumentIDs: retrieveDocs}
	if workspace != nil {
		scope.WorkspaceID = workspace.ID()
	}

	results, err := retrievalService.Retrieve(cmd.Context(), args[0], retrieveK, scope)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, toPassagesJSON(results))
	}
	printPassages(cmd, results)
	return nil
}

func printPassages(cmd *cobra.Command, results []domain.RetrievedChunk) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	width := snippetWidth()
	cmd.Println("Results:")
	cmd.Println()
	for _, r := range results {
		cmd.Printf("  [%d] %s (%.3f)\n", r.Rank+1, r.Chunk.DocumentID, r.Score)
		cmd.Printf("      %s\n", snippet(r.Chunk.Content, width))
		cmd.Println()
	}
}

// snippetWidth fits snippets to the terminal, falling back to 80 columns.
func snippetWidth() int {
	width := 80
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = w
		}
	}
	return max(width-8, 20)
}

// snippet collapses whitespace and cuts s to width runes.
func snippet(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
