package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	qerrors "github.com/quarry-search/quarry/internal/errors"
)

// OllamaConfig configures the local Ollama embedding provider.
type OllamaConfig struct {
	// Host is the Ollama base URL, e.g. "http://localhost:11434".
	Host string

	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string

	// Dimensions pins the expected dimension. Zero autodetects from
	// the first embedding.
	Dimensions int

	// Timeout bounds one request. Cold starts (model load) get three
	// times this budget.
	Timeout time.Duration
}

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	host       string
	model      string
	dimensions int
	timeout    time.Duration
	client     *http.Client

	// lastUse tracks model warmth; Ollama unloads idle models after a
	// few minutes and the next request pays the load time.
	lastUse time.Time
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// ollamaEmbedRequest is the /api/embed request body.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewOllamaEmbedder creates the provider. The server is not contacted
// until the first embedding request.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	// Pooled transport: indexing issues many sequential batches.
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &OllamaEmbedder{
		host:       host,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
		client:     &http.Client{Transport: transport},
	}
}

// EmbedQuery embeds a single query string.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of passages in one request.
func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum %d", len(texts), MaxBatchSize)
	}

	timeout := e.timeout
	if e.lastUse.IsZero() || time.Since(e.lastUse) > 5*time.Minute {
		// Cold model: allow for the load time.
		timeout = 3 * e.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeProviderUnavailable,
			fmt.Sprintf("ollama unreachable at %s", e.host), err).
			WithSuggestion("start Ollama with 'ollama serve'")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != "" {
		msg := parsed.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama embedding failed: %s", msg), nil)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding count mismatch: sent %d, got %d",
				len(texts), len(parsed.Embeddings)), nil)
	}

	e.lastUse = time.Now()
	if e.dimensions == 0 && len(parsed.Embeddings) > 0 {
		e.dimensions = len(parsed.Embeddings[0])
		slog.Debug("ollama_dimensions_detected",
			slog.String("model", e.model),
			slog.Int("dimensions", e.dimensions))
	}

	return parsed.Embeddings, nil
}

// Dimensions returns the embedding dimension, probing the server when
// it has not been detected yet.
func (e *OllamaEmbedder) Dimensions() int {
	if e.dimensions == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if vec, err := e.EmbedQuery(ctx, "dimension probe"); err == nil {
			e.dimensions = len(vec)
		}
	}
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Available probes the server root, which answers on any live Ollama.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
