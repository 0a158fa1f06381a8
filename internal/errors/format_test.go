package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesMessageHintAndCode(t *testing.T) {
	err := New(ErrCodeProviderUnavailable, "reranker unreachable", nil).
		WithSuggestion("Check reranker.endpoint in quarry.yaml")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: reranker unreachable")
	assert.Contains(t, out, "Hint: Check reranker.endpoint in quarry.yaml")
	assert.Contains(t, out, "Code: ERR_302_PROVIDER_UNAVAILABLE")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("something broke"))

	assert.Contains(t, out, "something broke")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestFormatForCLI_NilReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_RoundTrips(t *testing.T) {
	err := New(ErrCodeDimensionMismatch, "embedding dimension 384, index expects 768", nil).
		WithDetail("index", "handbook-pdf")

	data, jsonErr := FormatJSON(err)
	require.NoError(t, jsonErr)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "ERR_402_DIMENSION_MISMATCH", parsed["code"])
	assert.Equal(t, "VALIDATION", parsed["category"])
	assert.Equal(t, false, parsed["retryable"])
	details, ok := parsed["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "handbook-pdf", details["index"])
}

func TestFormatForLog_FlattensDetails(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(ErrCodeProviderTimeout, "embed call timed out", cause).
		WithDetail("endpoint", "http://localhost:11434")

	attrs := FormatForLog(err)

	assert.Equal(t, ErrCodeProviderTimeout, attrs["error_code"])
	assert.Equal(t, "connection refused", attrs["cause"])
	assert.Equal(t, true, attrs["retryable"])
	assert.Equal(t, "http://localhost:11434", attrs["detail_endpoint"])
}

func TestFormatForLog_PlainError(t *testing.T) {
	attrs := FormatForLog(errors.New("plain"))
	assert.Equal(t, "plain", attrs["error"])
	assert.Nil(t, FormatForLog(nil))
}
