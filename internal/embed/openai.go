package embed

import (
	"context"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	qerrors "github.com/quarry-search/quarry/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible embedding provider.
type OpenAIConfig struct {
	// Model is the embedding model, e.g. "text-embedding-3-small".
	Model string

	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	BaseURL string

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string

	// Dimensions pins the expected dimension. Zero probes the provider
	// with a test embedding on first use.
	Dimensions int

	// Timeout bounds one request.
	Timeout time.Duration
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the provider. A missing API key is a
// configuration error and fails construction.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, qerrors.New(qerrors.ErrCodeCredentialsMissing,
			fmt.Sprintf("embedding API key not set (env %s)", keyEnv), nil).
			WithSuggestion(fmt.Sprintf("export %s=<key>", keyEnv))
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    timeout,
	}, nil
}

// EmbedQuery embeds a single query string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments embeds a batch of passages in one request.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum %d", len(texts), MaxBatchSize)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
			"embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data)), nil)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, qerrors.New(qerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}

	if e.dimensions == 0 && len(vectors) > 0 {
		e.dimensions = len(vectors[0])
	}
	return vectors, nil
}

// Dimensions returns the embedding dimension, probing the provider
// when it was not configured and no embedding has been made yet.
func (e *OpenAIEmbedder) Dimensions() int {
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
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Available checks reachability with a tiny embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := e.EmbedQuery(ctx, "ping")
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error { return nil }
