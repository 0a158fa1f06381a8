package plan

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/quarry-search/quarry/internal/llm"
)

// MaxSubQueries caps decomposition width regardless of config.
const MaxSubQueries = 3

const decomposePrompt = `Break the user's question into at most %MAX% focused search queries that together cover everything it asks. Output one query per line, nothing else. If the question is already a single focused query, output it unchanged.`

// Decomposer splits complex questions into sub-queries with the
// lightweight model.
type Decomposer struct {
	client llm.Client
	model  string
	max    int
	logger *slog.Logger
}

// NewDecomposer creates a decomposer. max <= 0 or > MaxSubQueries is
// clamped to MaxSubQueries.
func NewDecomposer(client llm.Client, model string, max int, logger *slog.Logger) *Decomposer {
	if max <= 0 || max > MaxSubQueries {
		max = MaxSubQueries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{client: client, model: model, max: max, logger: logger}
}

// Decompose returns the sub-queries for a question. Any failure falls
// back to the original query alone; decomposition is an optimization,
// never a gate.
func (d *Decomposer) Decompose(ctx context.Context, query string) []string {
	resp, err := d.client.Chat(ctx, llm.ChatRequest{
		Model: d.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: strings.ReplaceAll(decomposePrompt, "%MAX%", strconv.Itoa(d.max))},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: 0.0,
		MaxTokens:   200,
	})
	if err != nil {
		d.logger.Warn("decompose_failed", "error", err)
		return []string{query}
	}

	subs := parseSubQueries(resp.Content, d.max)
	if len(subs) == 0 {
		return []string{query}
	}
	return subs
}

// parseSubQueries extracts one query per line, stripping list markers.
func parseSubQueries(content string, max int) []string {
	var subs []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		subs = append(subs, line)
		if len(subs) == max {
			break
		}
	}
	return subs
}
