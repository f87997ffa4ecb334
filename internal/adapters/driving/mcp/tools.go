package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/markhor/internal/core/domain"
)

const defaultK = 5

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query       string   `json:"query" jsonschema:"natural language text to find relevant passages for"`
	K           int      `json:"k,omitempty" jsonschema:"number of passages to return (default 5)"`
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"restrict results to these document IDs"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Passages []Passage `json:"passages"`
	Count    int       `json:"count"`
}

// Passage is one retrieved chunk.
type Passage struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Position   int     `json:"position"`
	Score      float64 `json:"score"`
	Percentile float64 `json:"percentile"`
	Content    string  `json:"content"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from workspace passages"`
	K        int    `json:"k,omitempty" jsonschema:"number of passages to ground the answer on (default 5)"`
	Rewrite  bool   `json:"rewrite,omitempty" jsonschema:"rewrite the question into a search query first"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	ID      string    `json:"id"`
	Answer  string    `json:"answer"`
	Model   string    `json:"model"`
	Query   string    `json:"query"`
	Sources []Passage `json:"sources"`
}

// StatusInput is the input schema for the index_status tool.
type StatusInput struct {
	DocumentID string `json:"document_id" jsonschema:"the workspace document ID"`
}

// StatusOutput is the output schema for the index_status tool.
type StatusOutput struct {
	DocumentID     string   `json:"document_id"`
	Indexed        bool     `json:"indexed"`
	Revision       uint64   `json:"revision,omitempty"`
	Chunks         int      `json:"chunks,omitempty"`
	Embedded       int      `json:"embedded,omitempty"`
	FailedChunkIDs []string `json:"failed_chunk_ids,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Find the workspace passages most relevant to a query",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether a workspace document is indexed",
	}, s.handleStatus)

	if s.ports.Answer != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question from retrieved workspace passages",
		}, s.handleAsk)
	}
}

func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	k := input.K
	if k <= 0 {
		k = defaultK
	}

	hits, err := s.ports.Retrieval.Retrieve(ctx, input.Query, k, domain.RetrievalScope{DocumentIDs: input.DocumentIDs})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	passages := toPassages(hits)
	return nil, RetrieveOutput{Passages: passages, Count: len(passages)}, nil
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Answer.Ask(ctx, domain.AskRequest{
		Question: input.Question,
		K:        input.K,
		Rewrite:  input.Rewrite,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		ID:      answer.ID,
		Answer:  answer.Text,
		Model:   answer.Model,
		Query:   answer.Query,
		Sources: toPassages(answer.Sources),
	}, nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	state, err := s.ports.Retrieval.Status(ctx, input.DocumentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, StatusOutput{DocumentID: input.DocumentID}, nil
	}
	if err != nil {
		return nil, StatusOutput{}, err
	}

	return nil, StatusOutput{
		DocumentID:     state.DocumentID,
		Indexed:        true,
		Revision:       state.Revision,
		Chunks:         state.ChunkCount,
		Embedded:       state.Embedded,
		FailedChunkIDs: state.FailedChunkIDs,
	}, nil
}

func toPassages(hits []domain.RetrievedChunk) []Passage {
	passages := make([]Passage, len(hits))
	for i, h := range hits {
		passages[i] = Passage{
			DocumentID: h.Chunk.DocumentID,
			ChunkID:    h.Chunk.ID,
			Position:   h.Chunk.Position,
			Score:      h.Score,
			Percentile: h.Percentile,
			Content:    h.Chunk.Content,
		}
	}
	return passages
}
