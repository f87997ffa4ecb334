package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
)

// stateStore implements driven.IndexStateStore.
type stateStore struct {
	store *Store
}

var _ driven.IndexStateStore = (*stateStore)(nil)

// SaveState stores or replaces the state of a document.
func (s *stateStore) SaveState(ctx context.Context, state domain.IndexState) error {
	failedJSON, err := json.Marshal(state.FailedChunkIDs)
	if err != nil {
		return fmt.Errorf("marshalling failed chunk ids: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO index_states (document_id, revision, chunk_count, embedded, failed_chunk_ids, chunking, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			revision = excluded.revision,
			chunk_count = excluded.chunk_count,
			embedded = excluded.embedded,
			failed_chunk_ids = excluded.failed_chunk_ids,
			chunking = excluded.chunking,
			indexed_at = excluded.indexed_at
	`, state.DocumentID, int64(state.Revision), state.ChunkCount, state.Embedded, //nolint:gosec // revisions fit in int64
		string(failedJSON), state.Chunking, state.IndexedAt)
	if err != nil {
		return fmt.Errorf("saving index state: %w", err)
	}
	return nil
}

// GetState retrieves the state of a document.
func (s *stateStore) GetState(ctx context.Context, documentID string) (*domain.IndexState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, revision, chunk_count, embedded, failed_chunk_ids, chunking, indexed_at
		FROM index_states WHERE document_id = ?
	`, documentID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return state, err
}

// DeleteState forgets a document.
func (s *stateStore) DeleteState(ctx context.Context, documentID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM index_states WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting index state: %w", err)
	}
	return nil
}

// ListStates returns every state ordered by document ID.
func (s *stateStore) ListStates(ctx context.Context) ([]domain.IndexState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, revision, chunk_count, embedded, failed_chunk_ids, chunking, indexed_at
		FROM index_states ORDER BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying index states: %w", err)
	}
	defer rows.Close()

	var states []domain.IndexState //nolint:prealloc // size unknown from query
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index states: %w", err)
	}
	return states, nil
}

// scanState scans one index state row. sql.ErrNoRows is returned unwrapped.
func scanState(row rowScanner) (*domain.IndexState, error) {
	var state domain.IndexState
	var revision int64
	var failedJSON sql.NullString

	if err := row.Scan(&state.DocumentID, &revision, &state.ChunkCount, &state.Embedded,
		&failedJSON, &state.Chunking, &state.IndexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning index state: %w", err)
	}
	state.Revision = uint64(revision) //nolint:gosec // stored from uint64

	if failedJSON.Valid && failedJSON.String != "" && failedJSON.String != jsonNull {
		if err := json.Unmarshal([]byte(failedJSON.String), &state.FailedChunkIDs); err != nil {
			return nil, fmt.Errorf("unmarshalling failed chunk ids: %w", err)
		}
	}

	return &state, nil
}
