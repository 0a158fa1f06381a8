package embed

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// MockEmbedder produces deterministic unit vectors derived from a hash
// of the input text. Equal texts always embed identically, so tests
// can exercise ranking without a provider.
type MockEmbedder struct {
	dims  int
	calls atomic.Int64

	// Fixed maps exact texts to fixed vectors for tests that need
	// controlled similarity.
	Fixed map[string][]float32
}

// Verify interface implementation at compile time
var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock with the given dimension.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{dims: dims}
}

// EmbedQuery embeds a single text deterministically.
func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	if v, ok := m.Fixed[text]; ok {
		return normalizeVector(v), nil
	}

	// Seed a stable pseudo-vector from token hashes so texts sharing
	// words land near each other.
	vec := make([]float32, m.dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(math.Sin(float64(seed%10007) / 10007.0 * math.Pi))
	}
	return normalizeVector(vec), nil
}

// EmbedDocuments embeds each text independently.
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the configured dimension.
func (m *MockEmbedder) Dimensions() int { return m.dims }

// ModelName identifies the mock.
func (m *MockEmbedder) ModelName() string { return "mock" }

// Available always reports true.
func (m *MockEmbedder) Available(ctx context.Context) bool { return true }

// Calls returns how many embeddings have been requested.
func (m *MockEmbedder) Calls() int64 { return m.calls.Load() }

// Close is a no-op.
func (m *MockEmbedder) Close() error { return nil }
