// Package registry persists which documents exist and which physical
// index each one lives in. The engine reads it; ingestion writes it.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// IndexKind distinguishes the text and image index families.
type IndexKind string

const (
	KindText   IndexKind = "text"
	KindImages IndexKind = "images"
)

// Document statuses.
const (
	StatusPending  = "pending"
	StatusIndexed  = "indexed"
	StatusFailed   = "failed"
	StatusDeleting = "deleting"
)

// Document is one registered source document.
type Document struct {
	DocumentID   string
	DocumentName string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FileHash     string
	ParserUsed   string
	Pages        int
}

// Registry is the document registry backed by registry.db.
type Registry struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS documents (
    document_id   TEXT PRIMARY KEY,
    document_name TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'pending',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    file_hash     TEXT NOT NULL DEFAULT '',
    parser_used   TEXT NOT NULL DEFAULT '',
    pages         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_name ON documents(document_name);
CREATE TABLE IF NOT EXISTS document_indexes (
    document_name TEXT NOT NULL,
    index_name    TEXT NOT NULL,
    kind          TEXT NOT NULL DEFAULT 'text',
    PRIMARY KEY (document_name, kind)
);
`

// Open opens or creates the registry database at path. An empty path
// creates an in-memory registry for testing.
func Open(path string) (*Registry, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}

	return &Registry{db: db, path: path}, nil
}

// Path returns the database file path, empty for in-memory registries.
func (r *Registry) Path() string { return r.path }

// Put inserts or updates a document record. CreatedAt is preserved on
// update; UpdatedAt is always refreshed.
func (r *Registry) Put(ctx context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry is closed")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	created := now
	if !doc.CreatedAt.IsZero() {
		created = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	status := doc.Status
	if status == "" {
		status = StatusPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, document_name, status, created_at,
			updated_at, file_hash, parser_used, pages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			document_name = excluded.document_name,
			status        = excluded.status,
			updated_at    = excluded.updated_at,
			file_hash     = excluded.file_hash,
			parser_used   = excluded.parser_used,
			pages         = excluded.pages`,
		doc.DocumentID, doc.DocumentName, status, created, now,
		doc.FileHash, doc.ParserUsed, doc.Pages)
	if err != nil {
		return fmt.Errorf("put document %s: %w", doc.DocumentID, err)
	}
	return nil
}

// Get fetches a document by ID. Returns (nil, nil) when absent.
func (r *Registry) Get(ctx context.Context, documentID string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT document_id, document_name, status, created_at, updated_at,
			file_hash, parser_used, pages
		FROM documents WHERE document_id = ?`, documentID)

	var doc Document
	var created, updated string
	err := row.Scan(&doc.DocumentID, &doc.DocumentName, &doc.Status,
		&created, &updated, &doc.FileHash, &doc.ParserUsed, &doc.Pages)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339, created)
	doc.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &doc, nil
}

// Delete removes a document and its index registrations.
func (r *Registry) Delete(ctx context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry is closed")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var name string
	err = tx.QueryRowContext(ctx,
		`SELECT document_name FROM documents WHERE document_id = ?`,
		documentID).Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up document %s: %w", documentID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_indexes WHERE document_name = ?`, name); err != nil {
		return fmt.Errorf("delete index registrations for %s: %w", name, err)
	}
	return tx.Commit()
}

// List returns all documents ordered by name.
func (r *Registry) List(ctx context.Context) ([]Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, document_name, status, created_at, updated_at,
			file_hash, parser_used, pages
		FROM documents ORDER BY document_name`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var created, updated string
		if err := rows.Scan(&doc.DocumentID, &doc.DocumentName, &doc.Status,
			&created, &updated, &doc.FileHash, &doc.ParserUsed, &doc.Pages); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.CreatedAt, _ = time.Parse(time.RFC3339, created)
		doc.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RegisterIndex records that a document's chunks of the given kind live
// in indexName. One index per (document, kind).
func (r *Registry) RegisterIndex(ctx context.Context, documentName, indexName string, kind IndexKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry is closed")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO document_indexes (document_name, index_name, kind)
		VALUES (?, ?, ?)
		ON CONFLICT(document_name, kind) DO UPDATE SET
			index_name = excluded.index_name`,
		documentName, indexName, string(kind))
	if err != nil {
		return fmt.Errorf("register index %s for %s: %w", indexName, documentName, err)
	}
	return nil
}

// IndexMap returns documentName -> indexName for the given kind.
func (r *Registry) IndexMap(ctx context.Context, kind IndexKind) (map[string]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT document_name, index_name FROM document_indexes WHERE kind = ?`,
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("load index map: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var name, index string
		if err := rows.Scan(&name, &index); err != nil {
			return nil, fmt.Errorf("scan index map row: %w", err)
		}
		m[name] = index
	}
	return m, rows.Err()
}

// PageCount returns the registered page count for a document name, 0
// when unknown. Citation page validation uses it as an upper bound.
func (r *Registry) PageCount(ctx context.Context, documentName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, fmt.Errorf("registry is closed")
	}

	var pages int
	err := r.db.QueryRowContext(ctx,
		`SELECT pages FROM documents WHERE document_name = ? ORDER BY updated_at DESC LIMIT 1`,
		documentName).Scan(&pages)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("page count for %s: %w", documentName, err)
	}
	return pages, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
