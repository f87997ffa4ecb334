package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

var (
	askK       int
	askRewrite bool
	askModel   string
	askDocs    []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from workspace passages",
	Long: `Retrieves passages relevant to the question and asks the configured
chat model to answer from them. Cited sources are listed after the answer.

With --rewrite the completion model first turns the question into a
search query.`,
	Args:        cobra.ExactArgs(1),
	Annotations: pipelineAnnotation,
	RunE:        runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askK, "top", "k", domain.DefaultAskK, "number of passages to answer from")
	askCmd.Flags().BoolVar(&askRewrite, "rewrite", false, "rewrite the question into a search query first")
	askCmd.Flags().StringVar(&askModel, "model", "", "chat model name (default: first configured)")
	askCmd.Flags().StringSliceVar(&askDocs, "doc", nil, "restrict to these document IDs")
	rootCmd.AddCommand(askCmd)
}

// answerJSON is the JSON shape of an Answer.
type answerJSON struct {
	ID       string        `json:"id"`
	Question string        `json:"question"`
	Query    string        `json:"query"`
	Answer   string        `json:"answer"`
	Model    string        `json:"model"`
	Sources  []passageJSON `json:"sources"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	req := domain.AskRequest{
		Question:  args[0],
		K:         askK,
		Scope:     domain.RetrievalScope{DocumentIDs: askDocs},
		Rewrite:   askRewrite,
		ChatModel: askModel,
	}
	if workspace != nil {
		req.Scope.WorkspaceID = workspace.ID()
	}

	answer, err := answerService.Ask(cmd.Context(), req)
	if errors.Is(err, domain.ErrNotFound) {
		cmd.Println("No relevant passages found. Run 'markhor index' first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, answerJSON{
			ID:       answer.ID,
			Question: answer.Question,
			Query:    answer.Query,
			Answer:   answer.Text,
			Model:    answer.Model,
			Sources:  toPassagesJSON(answer.Sources),
		})
	}

	cmd.Println(answer.Text)
	cmd.Println()
	if answer.Query != answer.Question {
		cmd.Printf("Query: %s\n", answer.Query)
	}
	cmd.Println("Sources:")
	for i, s := range answer.Sources {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, s.Chunk.DocumentID, s.Score)
	}
	return nil
}
