package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteChunkStore implements ChunkStore on a per-shard SQLite file.
// WAL mode allows the long-running engine and the ingestion CLI to
// share the database.
type SQLiteChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ ChunkStore = (*SQLiteChunkStore)(nil)

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT PRIMARY KEY,
    document_id  TEXT NOT NULL,
    source       TEXT NOT NULL,
    text         TEXT NOT NULL,
    text_english TEXT NOT NULL DEFAULT '',
    page         INTEGER NOT NULL DEFAULT 1,
    start_char   INTEGER NOT NULL DEFAULT 0,
    end_char     INTEGER NOT NULL DEFAULT 0,
    chunk_index  INTEGER NOT NULL DEFAULT 0,
    language     TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT 'text',
    page_blocks  TEXT,
    image_ref    TEXT,
    metadata     TEXT,
    created_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
CREATE TABLE IF NOT EXISTS index_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// NewSQLiteChunkStore opens or creates the chunk database at path.
// An empty path creates an in-memory store for testing.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create chunk store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	// WAL must be set via PRAGMA statements; modernc.org/sqlite ignores
	// some DSN parameters.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(chunkSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chunk schema: %w", err)
	}

	return &SQLiteChunkStore{db: db, path: path}, nil
}

// SaveChunks upserts chunk rows in a single transaction.
func (s *SQLiteChunkStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, source, text, text_english, page,
			start_char, end_char, chunk_index, language, content_type,
			page_blocks, image_ref, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			source = excluded.source,
			text = excluded.text,
			text_english = excluded.text_english,
			page = excluded.page,
			start_char = excluded.start_char,
			end_char = excluded.end_char,
			chunk_index = excluded.chunk_index,
			language = excluded.language,
			content_type = excluded.content_type,
			page_blocks = excluded.page_blocks,
			image_ref = excluded.image_ref,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		page := c.Page
		if page < 1 {
			page = 1
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		pageBlocks, err := marshalNullable(c.PageBlocks)
		if err != nil {
			return fmt.Errorf("marshal page_blocks for %s: %w", c.ID, err)
		}
		imageRef, err := marshalNullable(c.ImageRef)
		if err != nil {
			return fmt.Errorf("marshal image_ref for %s: %w", c.ID, err)
		}
		metadata, err := marshalNullable(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", c.ID, err)
		}

		contentType := c.ContentType
		if contentType == "" {
			contentType = ContentTypeText
		}

		_, err = stmt.ExecContext(ctx,
			c.ID, c.DocumentID, NormalizeSource(c.Source), c.Text, c.TextEnglish,
			page, c.StartChar, c.EndChar, c.ChunkIndex, c.Language,
			string(contentType), pageBlocks, imageRef, metadata,
			createdAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// marshalNullable encodes a value as JSON, mapping empty values to SQL
// NULL so absent page_blocks stay distinguishable from empty lists.
func marshalNullable(v any) (any, error) {
	switch t := v.(type) {
	case []PageBlock:
		if len(t) == 0 {
			return nil, nil
		}
	case *ImageRef:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

const chunkColumns = `id, document_id, source, text, text_english, page,
	start_char, end_char, chunk_index, language, content_type,
	page_blocks, image_ref, metadata, created_at`

// scanChunk reads one chunk row.
func scanChunk(scan func(dest ...any) error) (*Chunk, error) {
	var (
		c          Chunk
		content    string
		pageBlocks sql.NullString
		imageRef   sql.NullString
		metadata   sql.NullString
		createdAt  sql.NullString
	)

	err := scan(&c.ID, &c.DocumentID, &c.Source, &c.Text, &c.TextEnglish,
		&c.Page, &c.StartChar, &c.EndChar, &c.ChunkIndex, &c.Language,
		&content, &pageBlocks, &imageRef, &metadata, &createdAt)
	if err != nil {
		return nil, err
	}

	c.ContentType = ContentType(content)
	if pageBlocks.Valid {
		if err := json.Unmarshal([]byte(pageBlocks.String), &c.PageBlocks); err != nil {
			return nil, fmt.Errorf("decode page_blocks for %s: %w", c.ID, err)
		}
	}
	if imageRef.Valid {
		if err := json.Unmarshal([]byte(imageRef.String), &c.ImageRef); err != nil {
			return nil, fmt.Errorf("decode image_ref for %s: %w", c.ID, err)
		}
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", c.ID, err)
		}
	}
	if createdAt.Valid {
		if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
			c.CreatedAt = t
		}
	}

	return &c, nil
}

// GetChunk returns a chunk by ID, nil when absent.
func (s *SQLiteChunkStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	c, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return c, nil
}

// GetChunks batch-fetches chunks, preserving the requested order and
// skipping missing IDs.
func (s *SQLiteChunkStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	result := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// ChunksByDocument returns all chunks of the given documents in
// (document_id, chunk_index) order. Empty documentIDs returns every
// chunk in the shard.
func (s *SQLiteChunkStore) ChunksByDocument(ctx context.Context, documentIDs []string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	query := "SELECT " + chunkColumns + " FROM chunks"
	var args []any
	if len(documentIDs) > 0 {
		placeholders := strings.Repeat("?,", len(documentIDs))
		placeholders = placeholders[:len(placeholders)-1]
		query += " WHERE document_id IN (" + placeholders + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY document_id, chunk_index"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()

	var result []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteByDocument removes a document's chunks and returns the deleted
// IDs so sibling indexes can drop them too.
func (s *SQLiteChunkStore) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return nil, fmt.Errorf("list document chunks: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return nil, fmt.Errorf("delete document chunks: %w", err)
	}

	return ids, nil
}

// AllIDs returns every chunk ID.
func (s *SQLiteChunkStore) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM chunks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of chunk rows.
func (s *SQLiteChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("chunk store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// GetState reads a shard state value; empty string when absent.
func (s *SQLiteChunkStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("chunk store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM index_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a shard state value.
func (s *SQLiteChunkStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
