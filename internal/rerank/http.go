package rerank

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	qerrors "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/store"
)

// HTTPConfig configures the rerank service client.
type HTTPConfig struct {
	// Endpoint is the service base URL.
	Endpoint string

	// Model is the cross-encoder model name.
	Model string

	// APIKeyEnv names the environment variable holding the bearer
	// token. Empty or unset env means no auth header.
	APIKeyEnv string

	// Timeout bounds one rerank call.
	Timeout time.Duration

	// MaxFailures and ResetTimeout tune the circuit breaker.
	MaxFailures  int
	ResetTimeout time.Duration
}

// HTTPReranker calls a Cohere-style rerank endpoint:
// POST {model, query, documents, top_n} ->
// {results: [{index, relevance_score}]}.
type HTTPReranker struct {
	client  *resty.Client
	model   string
	breaker *qerrors.CircuitBreaker
}

// Verify interface implementation at compile time
var _ Reranker = (*HTTPReranker)(nil)

// rerankRequest is the service request body.
type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// rerankResponse is the service response body.
type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewHTTPReranker creates the client. The service is not contacted
// until the first call.
func NewHTTPReranker(cfg HTTPConfig) *HTTPReranker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Retry transport errors and 5xx; 4xx are permanent.
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			client.SetAuthToken(key)
		}
	}

	opts := []qerrors.CircuitBreakerOption{}
	if cfg.MaxFailures > 0 {
		opts = append(opts, qerrors.WithMaxFailures(cfg.MaxFailures))
	}
	if cfg.ResetTimeout > 0 {
		opts = append(opts, qerrors.WithResetTimeout(cfg.ResetTimeout))
	}

	return &HTTPReranker{
		client:  client,
		model:   cfg.Model,
		breaker: qerrors.NewCircuitBreaker("reranker", opts...),
	}
}

// Rerank scores candidates against the query. The caller handles
// errors by falling back to the input order; results are never partial.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []*store.Chunk, topK int) ([]Reranked, error) {
	if len(candidates) == 0 {
		return []Reranked{}, nil
	}

	if !r.breaker.Allow() {
		return nil, qerrors.New(qerrors.ErrCodeProviderUnavailable,
			"reranker circuit open", nil)
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}

	var parsed rerankResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(rerankRequest{Model: r.model, Query: query, Documents: documents, TopN: topK}).
		SetResult(&parsed).
		Post("/rerank")
	if err != nil {
		r.breaker.RecordFailure()
		return nil, qerrors.New(qerrors.ErrCodeRerankFailed, "rerank request failed", err)
	}
	if resp.IsError() {
		r.breaker.RecordFailure()
		return nil, qerrors.New(qerrors.ErrCodeRerankFailed,
			fmt.Sprintf("rerank service returned %d", resp.StatusCode()), nil)
	}
	r.breaker.RecordSuccess()

	results := make([]Reranked, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(candidates) {
			continue
		}
		score := item.RelevanceScore
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		results = append(results, Reranked{Chunk: candidates[item.Index], Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Available probes the health endpoint.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	resp, err := r.client.R().SetContext(ctx).Get("/health")
	return err == nil && !resp.IsError()
}

// Close releases resources.
func (r *HTTPReranker) Close() error { return nil }
