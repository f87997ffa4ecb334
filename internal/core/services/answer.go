package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/ports/driving"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// AnswerService grounds chat replies on retrieved chunks.
type AnswerService struct {
	retrieval driving.RetrievalService
	registry  driving.ModelRegistry
	prompts   driven.PromptStore
}

// NewAnswerService creates an answer service.
func NewAnswerService(
	retrieval driving.RetrievalService,
	registry driving.ModelRegistry,
	prompts driven.PromptStore,
) *AnswerService {
	return &AnswerService{retrieval: retrieval, registry: registry, prompts: prompts}
}

// Ask answers req.Question from the top passages.
func (s *AnswerService) Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	k := req.K
	if k <= 0 {
		k = domain.DefaultAskK
	}

	// Resolve first so a missing chat model fails before any embedding call.
	chat, err := s.registry.ResolveChat(req.ChatModel)
	if err != nil {
		return nil, err
	}

	query := question
	if req.Rewrite {
		query = s.rewrite(ctx, question)
	}

	sources, err := s.retrieval.Retrieve(ctx, query, k, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no passages match %q", domain.ErrNotFound, query)
	}

	system, err := s.prompts.Load(driven.PromptAnswerSystem)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.prompts.Load(driven.PromptAnswerContext)
	if err != nil {
		return nil, err
	}

	resp, err := chat.Chat(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{
			{Role: domain.RoleSystem, Content: system},
			{Role: domain.RoleUser, Content: fmt.Sprintf(tmpl, formatPassages(sources), question)},
		},
		Options: req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	id := uuid.NewString()
	logger.Debug("answer %s: %d passages, model %s", id, len(sources), chat.Descriptor().ID())

	return &domain.Answer{
		ID:       id,
		Question: question,
		Query:    query,
		Text:     strings.TrimSpace(resp.Message.Content),
		Model:    chat.Descriptor().ID(),
		Sources:  sources,
		Usage:    resp.Usage,
	}, nil
}

// rewrite returns a search query for question, or question itself when no
// completion model is registered or the rewrite fails.
func (s *AnswerService) rewrite(ctx context.Context, question string) string {
	model, err := s.registry.ResolveCompletion("")
	if err != nil {
		logger.Debug("query rewrite skipped: %v", err)
		return question
	}
	tmpl, err := s.prompts.Load(driven.PromptQueryRewrite)
	if err != nil {
		logger.Warn("query rewrite skipped: %v", err)
		return question
	}
	resp, err := model.Complete(ctx, domain.CompletionRequest{Prompt: fmt.Sprintf(tmpl, question)})
	if err != nil {
		logger.Warn("query rewrite failed: %v", err)
		return question
	}
	rewritten := strings.TrimSpace(strings.SplitN(resp.Text, "\n", 2)[0])
	if rewritten == "" {
		return question
	}
	logger.Debug("rewrote %q as %q", question, rewritten)
	return rewritten
}

// formatPassages numbers passages from 1 in rank order.
func formatPassages(sources []domain.RetrievedChunk) string {
	var b strings.Builder
	for i, src := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s", i+1, src.Chunk.DocumentID, strings.TrimSpace(src.Chunk.Content))
	}
	return b.String()
}
