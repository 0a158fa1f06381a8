package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// FTS5LexicalIndex implements LexicalIndex on SQLite FTS5. It is the
// alternate lexical backend (search.lexical_backend: fts5) and shares
// the shard's database file. Phrase slop maps to NEAR(); fuzziness
// degrades to prefix matching since FTS5 has no edit-distance queries.
type FTS5LexicalIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*FTS5LexicalIndex)(nil)

const fts5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS lexical_fts USING fts5(
    chunk_id UNINDEXED,
    text,
    text_english,
    tokenize = 'unicode61 remove_diacritics 2'
);
`

// NewFTS5LexicalIndex opens or creates the FTS5 table in the database
// at path. An empty path creates an in-memory index for testing.
func NewFTS5LexicalIndex(path string) (*FTS5LexicalIndex, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create lexical index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(fts5Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create fts5 table: %w", err)
	}

	return &FTS5LexicalIndex{db: db, path: path}, nil
}

// Index adds documents, replacing any with the same ID.
func (f *FTS5LexicalIndex) Index(ctx context.Context, docs []*LexicalDoc) error {
	if len(docs) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM lexical_fts WHERE chunk_id = ?", doc.ID); err != nil {
			return fmt.Errorf("replace document %s: %w", doc.ID, err)
		}
		english := doc.TextEnglish
		if english == "" {
			english = doc.Text
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO lexical_fts (chunk_id, text, text_english) VALUES (?, ?, ?)",
			doc.ID, doc.Text, english); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search runs each clause as its own MATCH query and sums boosted
// scores per chunk. FTS5's bm25() is negative (lower is better); the
// sign is flipped so scores align with the Bleve backend.
func (f *FTS5LexicalIndex) Search(ctx context.Context, clauses []Clause, limit int) ([]*LexicalResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if limit <= 0 {
		limit = 10
	}

	scores := make(map[string]float64)
	terms := make(map[string]map[string]struct{})

	for _, c := range clauses {
		expr := fts5MatchExpr(c)
		if expr == "" {
			continue
		}
		boost := c.EffectiveBoost()

		rows, err := f.db.QueryContext(ctx, `
			SELECT chunk_id, -bm25(lexical_fts, 0.0, 1.0, 1.0)
			FROM lexical_fts WHERE lexical_fts MATCH ?
			ORDER BY rank LIMIT ?`, expr, limit*4)
		if err != nil {
			// A malformed expression for one clause must not sink the
			// whole query; skip it.
			continue
		}

		for rows.Next() {
			var id string
			var score float64
			if err := rows.Scan(&id, &score); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan lexical hit: %w", err)
			}
			if score < 0 {
				score = 0
			}
			scores[id] += score * boost
			if terms[id] == nil {
				terms[id] = make(map[string]struct{})
			}
			for _, w := range strings.Fields(c.Text) {
				terms[id][strings.ToLower(w)] = struct{}{}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate lexical hits: %w", err)
		}
		rows.Close()
	}

	results := make([]*LexicalResult, 0, len(scores))
	for id, score := range scores {
		matched := make([]string, 0, len(terms[id]))
		for t := range terms[id] {
			matched = append(matched, t)
		}
		sort.Strings(matched)
		results = append(results, &LexicalResult{ID: id, Score: score, MatchedTerms: matched})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fts5MatchExpr translates one clause to FTS5 MATCH syntax.
func fts5MatchExpr(c Clause) string {
	words := strings.Fields(c.Text)
	if len(words) == 0 {
		return ""
	}

	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}

	var body string
	switch c.Kind {
	case ClausePhrase:
		if len(quoted) == 1 {
			body = quoted[0]
		} else if c.Slop <= 1 {
			body = `"` + strings.ReplaceAll(c.Text, `"`, `""`) + `"`
		} else {
			body = fmt.Sprintf("NEAR(%s, %d)", strings.Join(quoted, " "), c.Slop)
		}
	case ClauseMulti:
		parts := make([]string, len(words))
		for i, w := range words {
			w = strings.ReplaceAll(w, `"`, `""`)
			if c.Fuzziness > 0 && len(w) > 3 {
				// Prefix match is the closest FTS5 analogue to
				// fuzziness.
				parts[i] = `"` + w + `"*`
			} else {
				parts[i] = `"` + w + `"`
			}
		}
		body = strings.Join(parts, " OR ")
	default:
		return ""
	}

	cols := make([]string, 0, 2)
	for _, field := range c.EffectiveFields() {
		switch field {
		case FieldText, FieldTextEnglish:
			cols = append(cols, field)
		}
	}
	if len(cols) == 0 || len(cols) == 2 {
		return body
	}
	return "{" + strings.Join(cols, " ") + "}: (" + body + ")"
}

// Delete removes documents by ID.
func (f *FTS5LexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM lexical_fts WHERE chunk_id = ?", id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// AllIDs returns every indexed chunk ID.
func (f *FTS5LexicalIndex) AllIDs() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("index is closed")
	}

	rows, err := f.db.Query("SELECT chunk_id FROM lexical_fts ORDER BY chunk_id")
	if err != nil {
		return nil, fmt.Errorf("list lexical ids: %w", err)
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

// Stats returns index statistics.
func (f *FTS5LexicalIndex) Stats() *LexicalStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return &LexicalStats{}
	}

	var count int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM lexical_fts").Scan(&count); err != nil {
		return &LexicalStats{}
	}
	return &LexicalStats{DocumentCount: count}
}

// Close closes the database connection.
func (f *FTS5LexicalIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.db.Close()
}
