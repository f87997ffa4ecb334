package driving

import (
	"context"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

// AnswerService answers questions from retrieved workspace passages.
type AnswerService interface {
	// Ask retrieves passages for the question and asks a chat model to answer
	// from them. Returns domain.ErrNotFound when nothing relevant is indexed.
	Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)
}
