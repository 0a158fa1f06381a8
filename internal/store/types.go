// Package store is the persistence layer for physical indexes: chunk
// metadata in SQLite, lexical search via Bleve or SQLite FTS5, and
// vector search via an HNSW graph. A Shard bundles the three under one
// directory.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ContentType marks the origin of a chunk's text.
type ContentType string

const (
	// ContentTypeText is ordinary document text.
	ContentTypeText ContentType = "text"
	// ContentTypeImageOCR is text recovered from an image. These
	// chunks live in the separate images index.
	ContentTypeImageOCR ContentType = "image_ocr"
)

// State keys for the per-shard index_state table.
const (
	// StateKeyDimension stores the embedding dimension of the shard.
	StateKeyDimension = "vector_dimension"
	// StateKeyModel stores the embedding model the shard was built with.
	StateKeyModel = "embedding_model"
	// StateKeyCreatedAt stores the shard creation time (RFC 3339).
	StateKeyCreatedAt = "created_at"
)

// PageBlock maps a character range of a chunk to a source page.
// Multi-page chunks carry one block per page they span.
type PageBlock struct {
	Page      int    `json:"page"`
	StartChar int    `json:"start_char"`
	EndChar   int    `json:"end_char"`
	Type      string `json:"type,omitempty"`
}

// ImageRef locates the source image of an OCR chunk.
type ImageRef struct {
	Page       int       `json:"page"`
	ImageIndex int       `json:"image_index"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Chunk is the retrievable unit of a document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	// Source is the document basename, never a path.
	Source string `json:"source"`

	Text string `json:"text"`
	// TextEnglish is an optional translation used by the english
	// lexical field; empty falls back to Text.
	TextEnglish string `json:"text_english,omitempty"`

	// Vector is the embedding, carried only while indexing. It is
	// persisted in the HNSW graph, not in SQLite.
	Vector []float32 `json:"vector,omitempty"`

	// Page is 1-based. Unknown pages are stored as 1 and flagged with
	// low confidence downstream.
	Page       int    `json:"page"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	ChunkIndex int    `json:"chunk_index"`
	Language   string `json:"language,omitempty"`

	ContentType ContentType `json:"content_type"`
	PageBlocks  []PageBlock `json:"page_blocks,omitempty"`
	ImageRef    *ImageRef   `json:"image_ref,omitempty"`

	// Metadata carries ingestion extras (markers, confidences,
	// extraction methods). Read through the Meta* helpers, which
	// tolerate values nested one level under a "metadata" key.
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// EnglishText returns the english-field text, falling back to Text.
func (c *Chunk) EnglishText() string {
	if c.TextEnglish != "" {
		return c.TextEnglish
	}
	return c.Text
}

// IsImage reports whether the chunk came from OCR.
func (c *Chunk) IsImage() bool {
	return c.ContentType == ContentTypeImageOCR
}

// metaLookup probes the metadata map: top-level key first, then one
// level under a nested "metadata" object. Ingestion sources disagree
// on the shape; readers must accept both.
func metaLookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	if nested, ok := m["metadata"].(map[string]any); ok {
		if v, ok := nested[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// MetaString returns a string metadata value.
func (c *Chunk) MetaString(key string) (string, bool) {
	v, ok := metaLookup(c.Metadata, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// MetaInt returns an integer metadata value. JSON decoding yields
// float64 for numbers; numeric strings are accepted too.
func (c *Chunk) MetaInt(key string) (int, bool) {
	v, ok := metaLookup(c.Metadata, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// MetaFloat returns a float metadata value with the same coercions as
// MetaInt.
func (c *Chunk) MetaFloat(key string) (float64, bool) {
	v, ok := metaLookup(c.Metadata, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// NormalizeSource reduces a source reference to a bare basename.
// Writers canonicalize with this before persisting.
func NormalizeSource(source string) string {
	source = strings.TrimSpace(source)
	source = strings.ReplaceAll(source, "\\", "/")
	return filepath.Base(source)
}

// ClauseKind selects how a lexical clause matches.
type ClauseKind string

const (
	// ClausePhrase matches terms in order within Slop positions.
	ClausePhrase ClauseKind = "phrase"
	// ClauseMulti matches any term, optionally with fuzziness.
	ClauseMulti ClauseKind = "multi"
)

// Lexical field names.
const (
	FieldText        = "text"
	FieldTextEnglish = "text_english"
)

// Clause is one weighted component of a lexical query. Backends
// translate it natively; scores of matching clauses are summed per
// document.
type Clause struct {
	Kind      ClauseKind
	Text      string
	Fields    []string // empty means both text fields
	Slop      int      // phrase only
	Fuzziness int      // multi only, edit distance
	Boost     float64  // 0 means 1.0
}

// EffectiveBoost returns the boost with the zero-value default.
func (c Clause) EffectiveBoost() float64 {
	if c.Boost == 0 {
		return 1.0
	}
	return c.Boost
}

// EffectiveFields returns the target fields with the default pair.
func (c Clause) EffectiveFields() []string {
	if len(c.Fields) == 0 {
		return []string{FieldText, FieldTextEnglish}
	}
	return c.Fields
}

// LexicalDoc is what lexical backends index per chunk.
type LexicalDoc struct {
	ID          string
	Text        string
	TextEnglish string
}

// LexicalResult is a single lexical hit. Scores are BM25-style:
// higher is better, unbounded.
type LexicalResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// LexicalStats describes a lexical index.
type LexicalStats struct {
	DocumentCount int
}

// LexicalIndex provides keyword search over chunk text.
type LexicalIndex interface {
	// Index adds documents, replacing any with the same ID.
	Index(ctx context.Context, docs []*LexicalDoc) error

	// Search executes the clause set and returns per-document summed
	// scores, best first.
	Search(ctx context.Context, clauses []Clause, limit int) ([]*LexicalResult, error)

	// Delete removes documents by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns every indexed document ID, for consistency checks.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() *LexicalStats

	Close() error
}

// VectorResult is a single vector hit.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding vector dimension.
	Dimensions int

	// Metric is "cos" (cosine) or "l2" (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfConstruction is the HNSW build-time search width.
	EfConstruction int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults tuned for document
// retrieval: cosine metric and a wide search beam.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       512,
	}
}

// VectorStore provides semantic search over embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs, for consistency checks.
	AllIDs() []string

	// Contains checks whether an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence.
	Save(path string) error
	Load(path string) error
	Close() error
}

// ChunkStore persists chunk rows and shard state in SQLite.
type ChunkStore interface {
	// SaveChunks upserts chunk rows.
	SaveChunks(ctx context.Context, chunks []*Chunk) error

	// GetChunk returns a chunk by ID, nil when absent.
	GetChunk(ctx context.Context, id string) (*Chunk, error)

	// GetChunks batch-fetches chunks, preserving the requested order
	// and skipping missing IDs.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// ChunksByDocument returns all chunks of the given documents,
	// ordered by (document_id, chunk_index). Empty documentIDs means
	// every chunk in the shard.
	ChunksByDocument(ctx context.Context, documentIDs []string) ([]*Chunk, error)

	// DeleteByDocument removes a document's chunks and returns the
	// deleted IDs so sibling indexes can drop them too.
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)

	// AllIDs returns every chunk ID.
	AllIDs(ctx context.Context) ([]string, error)

	// Count returns the number of chunk rows.
	Count(ctx context.Context) (int, error)

	// State is a key/value table for shard facts (dimension, model).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// ErrDimensionMismatch indicates the embedder and the shard disagree
// on vector dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index has %d, got %d (recreate the index or enable search.recreate_on_mismatch)", e.Expected, e.Got)
}
