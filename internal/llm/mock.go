package llm

import (
	"context"
	"sync"

	qerrors "github.com/quarry-search/quarry/internal/errors"
)

// MockClient is a scriptable Client for tests. Responses are returned
// in order; when exhausted, Reply is returned. Every request is
// recorded for assertions.
type MockClient struct {
	mu sync.Mutex

	// Reply is the default answer.
	Reply string

	// Responses are returned one by one before Reply applies.
	Responses []string

	// Err, when set, fails every call.
	Err error

	// Down makes Available report false.
	Down bool

	Requests []ChatRequest
}

// Verify interface implementation at compile time
var _ Client = (*MockClient)(nil)

// Chat records the request and returns the next scripted response.
func (m *MockClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.Err != nil {
		return nil, m.Err
	}

	content := m.Reply
	if len(m.Responses) > 0 {
		content = m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	if content == "" {
		return nil, qerrors.New(qerrors.ErrCodeGenerationFailed,
			"mock has no scripted response", nil)
	}

	promptLen := 0
	for _, msg := range req.Messages {
		promptLen += len(msg.Content)
	}

	return &ChatResponse{
		Content: content,
		Usage: Usage{
			PromptTokens:     promptLen / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (promptLen + len(content)) / 4,
		},
	}, nil
}

// CallCount returns how many chat calls were made.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, nil when none.
func (m *MockClient) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	req := m.Requests[len(m.Requests)-1]
	return &req
}

// Available reports the scripted availability.
func (m *MockClient) Available(ctx context.Context) bool { return !m.Down }

// Close is a no-op.
func (m *MockClient) Close() error { return nil }
