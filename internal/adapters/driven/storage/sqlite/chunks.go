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

// jsonNull is the JSON representation of null.
const jsonNull = "null"

const chunkColumns = `id, document_id, workspace_id, revision, position, start_offset, end_offset,
	token_start, token_end, content, content_hash, metadata`

// chunkStore implements driven.ChunkStore.
type chunkStore struct {
	store *Store
}

var _ driven.ChunkStore = (*chunkStore)(nil)

// SaveChunks stores chunks, replacing any with the same ID.
func (s *chunkStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			workspace_id = excluded.workspace_id,
			revision = excluded.revision,
			position = excluded.position,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			token_start = excluded.token_start,
			token_end = excluded.token_end,
			content = excluded.content,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.WorkspaceID, int64(c.Revision), //nolint:gosec // revisions fit in int64
			c.Position, c.Start, c.End, c.TokenStart, c.TokenEnd, c.Content, c.ContentHash,
			string(metadataJSON)); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunk retrieves a chunk by ID.
func (s *chunkStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// GetChunks retrieves the chunks of a document ordered by revision then position.
func (s *chunkStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+` FROM chunks
		WHERE document_id = ?
		ORDER BY revision, position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunks removes every chunk of a document.
func (s *chunkStore) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// DeleteStaleChunks removes chunks of a document cut from other revisions.
func (s *chunkStore) DeleteStaleChunks(ctx context.Context, documentID string, keep uint64) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ? AND revision != ?",
		documentID, int64(keep)) //nolint:gosec // revisions fit in int64
	if err != nil {
		return fmt.Errorf("deleting stale chunks: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk scans one chunk row. sql.ErrNoRows is returned unwrapped.
func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var c domain.Chunk
	var revision int64
	var metadataJSON sql.NullString

	if err := row.Scan(&c.ID, &c.DocumentID, &c.WorkspaceID, &revision, &c.Position,
		&c.Start, &c.End, &c.TokenStart, &c.TokenEnd, &c.Content, &c.ContentHash,
		&metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Revision = uint64(revision) //nolint:gosec // stored from uint64

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk metadata: %w", err)
		}
	}

	return &c, nil
}
