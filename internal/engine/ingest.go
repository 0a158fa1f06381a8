package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	qerrors "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/registry"
	"github.com/quarry-search/quarry/internal/store"
)

// IngestChunk is one pre-parsed chunk of a document. Vector may be nil;
// missing vectors are embedded during ingestion.
type IngestChunk struct {
	Text        string          `json:"text"`
	TextEnglish string          `json:"text_english,omitempty"`
	Vector      []float32       `json:"vector,omitempty"`
	Page        int             `json:"page"`
	StartChar   int             `json:"start_char"`
	EndChar     int             `json:"end_char"`
	Language    string          `json:"language,omitempty"`
	ImageRef    *store.ImageRef `json:"image_ref,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	DocumentName string
	DocumentID   string // generated when empty
	FileHash     string
	ParserUsed   string
	Pages        int
	Kind         registry.IndexKind
	Chunks       []IngestChunk
}

// IngestResult reports what ingestion wrote.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	IndexID    string `json:"index_id"`
	Chunks     int    `json:"chunks"`
	Embedded   int    `json:"embedded"`
}

// Ingest registers a document, routes it to an index, embeds chunks
// that arrived without vectors, and writes the shard. The document is
// marked failed in the registry when any step after registration fails.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.DocumentName == "" {
		return nil, qerrors.New(qerrors.ErrCodeInvalidInput, "document name is required", nil)
	}
	if len(req.Chunks) == 0 {
		return nil, qerrors.New(qerrors.ErrCodeInvalidInput, "document has no chunks", nil)
	}

	kind := req.Kind
	if kind == "" {
		kind = registry.KindText
	}

	// Re-ingestion keeps the document's identity: the existing registry
	// row supplies the document ID (stable chunk IDs overwrite in place)
	// and the existing index is reused instead of minting a suffixed one.
	docID := req.DocumentID
	existingIndex := e.router.Lookup(req.DocumentName, kind)
	if docID == "" {
		if docs, err := e.registry.List(ctx); err == nil {
			for _, d := range docs {
				if d.DocumentName == req.DocumentName {
					docID = d.DocumentID
					break
				}
			}
		}
	}
	if docID == "" {
		docID = uuid.NewString()
	}
	pages := req.Pages
	for _, c := range req.Chunks {
		if c.Page > pages {
			pages = c.Page
		}
	}

	doc := registry.Document{
		DocumentID:   docID,
		DocumentName: req.DocumentName,
		Status:       registry.StatusPending,
		FileHash:     req.FileHash,
		ParserUsed:   req.ParserUsed,
		Pages:        pages,
	}
	if err := e.registry.Put(ctx, doc); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeRegistryUnavailable, "register document", err)
	}

	index, err := e.router.Register(ctx, req.DocumentName, existingIndex, kind)
	if err != nil {
		return nil, e.failIngest(ctx, doc, err)
	}

	exec, err := e.openExecutor(ctx, index)
	if err != nil {
		return nil, e.failIngest(ctx, doc, err)
	}

	chunks, embedded, err := e.materializeChunks(ctx, docID, req.DocumentName, kind, req.Chunks)
	if err != nil {
		return nil, e.failIngest(ctx, doc, err)
	}

	if err := exec.Shard().Add(ctx, chunks); err != nil {
		return nil, e.failIngest(ctx, doc, err)
	}

	doc.Status = registry.StatusIndexed
	if err := e.registry.Put(ctx, doc); err != nil {
		return nil, qerrors.New(qerrors.ErrCodeRegistryUnavailable, "mark document indexed", err)
	}
	e.InvalidateCache(index)

	e.logger.Info("document_ingested",
		"document", req.DocumentName, "index", index,
		"chunks", len(chunks), "embedded", embedded)

	return &IngestResult{
		DocumentID: docID,
		IndexID:    index,
		Chunks:     len(chunks),
		Embedded:   embedded,
	}, nil
}

// materializeChunks converts ingest chunks to store chunks, batching
// the missing vectors through the embedder.
func (e *Engine) materializeChunks(ctx context.Context, docID, source string,
	kind registry.IndexKind, in []IngestChunk) ([]*store.Chunk, int, error) {

	var missing []int
	var texts []string
	for i, c := range in {
		if len(c.Vector) == 0 {
			missing = append(missing, i)
			texts = append(texts, c.Text)
		}
	}

	vectors := make(map[int][]float32, len(missing))
	if len(missing) > 0 {
		embedded, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, 0, qerrors.Wrap(qerrors.ErrCodeEmbeddingFailed, err)
		}
		if len(embedded) != len(missing) {
			return nil, 0, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(embedded), len(missing)), nil)
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
		}
	}

	out := make([]*store.Chunk, len(in))
	for i, c := range in {
		chunk := &store.Chunk{
			ID:          fmt.Sprintf("%s-%d", docID, i),
			DocumentID:  docID,
			Source:      source,
			Text:        c.Text,
			TextEnglish: c.TextEnglish,
			Vector:      c.Vector,
			Page:        c.Page,
			StartChar:   c.StartChar,
			EndChar:     c.EndChar,
			ChunkIndex:  i,
			Language:    c.Language,
			ContentType: store.ContentTypeText,
			ImageRef:    c.ImageRef,
			Metadata:    c.Metadata,
		}
		if v, ok := vectors[i]; ok {
			chunk.Vector = v
		}
		if kind == registry.KindImages {
			chunk.ContentType = store.ContentTypeImageOCR
		}
		out[i] = chunk
	}
	return out, len(missing), nil
}

// failIngest records the failed status before surfacing the error.
func (e *Engine) failIngest(ctx context.Context, doc registry.Document, cause error) error {
	doc.Status = registry.StatusFailed
	if err := e.registry.Put(ctx, doc); err != nil {
		e.logger.Warn("ingest_status_update_failed", "document", doc.DocumentName, "error", err)
	}
	return cause
}
