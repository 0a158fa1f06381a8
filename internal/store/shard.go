package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// Shard layout inside its directory.
const (
	shardChunksFile = "chunks.db"
	shardBleveDir   = "bleve"
	shardVectorFile = "vectors.hnsw"
	shardLockFile   = ".lock"
)

// ShardOptions configures how a shard is opened.
type ShardOptions struct {
	// LexicalBackend is "bleve" (default) or "fts5".
	LexicalBackend string

	// Vector holds HNSW tuning. Dimensions may be zero when opening an
	// existing shard; the stored dimension wins.
	Vector VectorStoreConfig

	// EmbeddingModel is recorded in the shard state on first write.
	EmbeddingModel string
}

// Shard is one physical index: chunk rows in SQLite, a lexical index,
// and an HNSW vector graph under a single directory. The engine reads
// shards; ingestion writes them through the same API.
type Shard struct {
	name string
	dir  string
	opts ShardOptions

	chunks  ChunkStore
	lexical LexicalIndex
	vectors VectorStore

	lock *flock.Flock
}

// OpenShard opens or creates the shard directory. The lexical index is
// derived data: when it is corrupted or behind the chunk store it is
// rebuilt from the chunk rows.
func OpenShard(ctx context.Context, dir string, opts ShardOptions) (*Shard, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create shard directory: %w", err)
	}

	chunks, err := NewSQLiteChunkStore(filepath.Join(dir, shardChunksFile))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	// Stored dimension wins over the caller's.
	dims := opts.Vector.Dimensions
	if stored, err := chunks.GetState(ctx, StateKeyDimension); err == nil && stored != "" {
		if n, err := strconv.Atoi(stored); err == nil && n > 0 {
			dims = n
		}
	}

	var lexical LexicalIndex
	switch opts.LexicalBackend {
	case "fts5":
		lexical, err = NewFTS5LexicalIndex(filepath.Join(dir, "lexical.db"))
	default:
		lexical, err = NewBleveLexicalIndex(filepath.Join(dir, shardBleveDir))
	}
	if err != nil {
		chunks.Close()
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	vcfg := opts.Vector
	vcfg.Dimensions = dims
	if vcfg.Dimensions == 0 {
		vcfg = DefaultVectorStoreConfig(dims)
		vcfg.EfSearch = opts.Vector.EfSearch
	}
	vectors, err := NewHNSWStore(vcfg)
	if err != nil {
		lexical.Close()
		chunks.Close()
		return nil, fmt.Errorf("create vector store: %w", err)
	}

	vectorPath := filepath.Join(dir, shardVectorFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			// The vector graph is rebuildable only by re-embedding, so
			// a load failure is surfaced rather than healed silently.
			lexical.Close()
			chunks.Close()
			return nil, fmt.Errorf("load vector store: %w", err)
		}
	}

	s := &Shard{
		name:    filepath.Base(dir),
		dir:     dir,
		opts:    opts,
		chunks:  chunks,
		lexical: lexical,
		vectors: vectors,
		lock:    flock.New(filepath.Join(dir, shardLockFile)),
	}

	if err := s.healLexical(ctx); err != nil {
		slog.Warn("lexical_heal_failed",
			slog.String("shard", s.name),
			slog.String("error", err.Error()))
	}

	return s, nil
}

// healLexical re-derives the lexical index from chunk rows when it has
// fewer documents than the chunk store (fresh index after corruption
// recovery, or a crash between the two writes).
func (s *Shard) healLexical(ctx context.Context) error {
	chunkCount, err := s.chunks.Count(ctx)
	if err != nil {
		return err
	}
	stats := s.lexical.Stats()
	if stats.DocumentCount >= chunkCount {
		return nil
	}

	slog.Info("lexical_rebuild",
		slog.String("shard", s.name),
		slog.Int("lexical_docs", stats.DocumentCount),
		slog.Int("chunk_rows", chunkCount))

	all, err := s.chunks.ChunksByDocument(ctx, nil)
	if err != nil {
		return err
	}
	docs := make([]*LexicalDoc, len(all))
	for i, c := range all {
		docs[i] = &LexicalDoc{ID: c.ID, Text: c.Text, TextEnglish: c.TextEnglish}
	}
	return s.lexical.Index(ctx, docs)
}

// Name returns the shard's index name (its directory basename).
func (s *Shard) Name() string { return s.name }

// Dir returns the shard directory.
func (s *Shard) Dir() string { return s.dir }

// Dimensions returns the shard's vector dimension, zero when the shard
// has never been written.
func (s *Shard) Dimensions(ctx context.Context) int {
	stored, err := s.chunks.GetState(ctx, StateKeyDimension)
	if err != nil || stored == "" {
		return 0
	}
	n, err := strconv.Atoi(stored)
	if err != nil {
		return 0
	}
	return n
}

// ValidateDimensions checks the embedder's dimension against the
// shard's. A never-written shard accepts any dimension.
func (s *Shard) ValidateDimensions(ctx context.Context, got int) error {
	expected := s.Dimensions(ctx)
	if expected == 0 || expected == got {
		return nil
	}
	return ErrDimensionMismatch{Expected: expected, Got: got}
}

// Add writes chunks to all three indexes. The first write records the
// shard's dimension and embedding model.
func (s *Shard) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := 0
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("chunk %s has no vector", c.ID)
		}
		if dim == 0 {
			dim = len(c.Vector)
		} else if len(c.Vector) != dim {
			return ErrDimensionMismatch{Expected: dim, Got: len(c.Vector)}
		}
	}
	if err := s.ValidateDimensions(ctx, dim); err != nil {
		return err
	}

	if err := s.chunks.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	docs := make([]*LexicalDoc, len(chunks))
	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		docs[i] = &LexicalDoc{ID: c.ID, Text: c.Text, TextEnglish: c.TextEnglish}
		ids[i] = c.ID
		vectors[i] = c.Vector
	}

	if err := s.lexical.Index(ctx, docs); err != nil {
		return fmt.Errorf("index lexical: %w", err)
	}
	if err := s.vectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}

	if s.Dimensions(ctx) == 0 {
		if err := s.chunks.SetState(ctx, StateKeyDimension, strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("record dimension: %w", err)
		}
		if s.opts.EmbeddingModel != "" {
			if err := s.chunks.SetState(ctx, StateKeyModel, s.opts.EmbeddingModel); err != nil {
				return fmt.Errorf("record model: %w", err)
			}
		}
		_ = s.chunks.SetState(ctx, StateKeyCreatedAt, time.Now().UTC().Format(time.RFC3339))
	}

	return s.vectors.Save(filepath.Join(s.dir, shardVectorFile))
}

// DeleteDocument removes a document from all three indexes and returns
// the number of chunks dropped.
func (s *Shard) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	ids, err := s.chunks.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.lexical.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete lexical: %w", err)
	}
	if err := s.vectors.Delete(ctx, ids); err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.vectors.Save(filepath.Join(s.dir, shardVectorFile)); err != nil {
		return 0, fmt.Errorf("save vectors: %w", err)
	}
	return len(ids), nil
}

// VectorSearch returns the k nearest chunks to the query vector.
func (s *Shard) VectorSearch(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	return s.vectors.Search(ctx, query, k)
}

// LexicalSearch executes the clause set against the lexical index.
func (s *Shard) LexicalSearch(ctx context.Context, clauses []Clause, limit int) ([]*LexicalResult, error) {
	return s.lexical.Search(ctx, clauses, limit)
}

// GetChunks batch-fetches chunk rows by ID.
func (s *Shard) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	return s.chunks.GetChunks(ctx, ids)
}

// ChunksByDocument returns a document's chunks in chunk_index order.
func (s *Shard) ChunksByDocument(ctx context.Context, documentIDs []string) ([]*Chunk, error) {
	return s.chunks.ChunksByDocument(ctx, documentIDs)
}

// Count returns the number of chunks in the shard.
func (s *Shard) Count(ctx context.Context) (int, error) {
	return s.chunks.Count(ctx)
}

// EmbeddingModel returns the model the shard was built with.
func (s *Shard) EmbeddingModel(ctx context.Context) string {
	model, _ := s.chunks.GetState(ctx, StateKeyModel)
	return model
}

// Close releases all three indexes.
func (s *Shard) Close() error {
	var firstErr error
	if err := s.lexical.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Recreate destroys the shard's contents and reopens it empty at the
// given dimension. Destructive: only reached through the explicit
// recreate_on_mismatch flag. The directory lock serializes recreation
// against other processes.
func (s *Shard) Recreate(ctx context.Context, dimensions int) (*Shard, error) {
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock shard: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("shard %s is locked by another process", s.name)
	}
	defer s.lock.Unlock()

	slog.Warn("shard_recreate",
		slog.String("shard", s.name),
		slog.Int("dimensions", dimensions))

	if err := s.Close(); err != nil {
		return nil, fmt.Errorf("close shard before recreate: %w", err)
	}

	dir := s.dir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read shard directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == shardLockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return nil, fmt.Errorf("clear shard: %w", err)
		}
	}

	opts := s.opts
	opts.Vector.Dimensions = dimensions
	return OpenShard(ctx, dir, opts)
}

// DeleteShardDir removes a shard directory entirely, taking the lock
// first so a concurrent recreate cannot race the removal.
func DeleteShardDir(dir string) error {
	lock := flock.New(filepath.Join(dir, shardLockFile))
	locked, err := lock.TryLock()
	if err == nil && locked {
		defer lock.Unlock()
	}
	return os.RemoveAll(dir)
}
