package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarryError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with QuarryError
	qErr := New(ErrCodeIndexNotFound, "index not found: handbook-pdf", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, qErr)
	assert.Equal(t, originalErr, errors.Unwrap(qErr))
	assert.True(t, errors.Is(qErr, originalErr))
}

func TestQuarryError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "store error",
			code:     ErrCodeIndexNotFound,
			message:  "index handbook-pdf not found",
			expected: "[ERR_201_INDEX_NOT_FOUND] index handbook-pdf not found",
		},
		{
			name:     "provider error",
			code:     ErrCodeProviderTimeout,
			message:  "embedding request timed out",
			expected: "[ERR_301_PROVIDER_TIMEOUT] embedding request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestQuarryError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeIndexNotFound, "index A not found", nil)
	err2 := New(ErrCodeIndexNotFound, "index B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestQuarryError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeIndexNotFound, "index not found", nil)
	err2 := New(ErrCodeConfigNotFound, "config not found", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestQuarryError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeIndexNotFound, "index not found", nil)

	err = err.WithDetail("index", "handbook-pdf")
	err = err.WithDetail("kind", "text")

	assert.Equal(t, "handbook-pdf", err.Details["index"])
	assert.Equal(t, "text", err.Details["kind"])
}

func TestQuarryError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeProviderTimeout, "connection timed out", nil)

	err = err.WithSuggestion("Check that the embedding service is reachable")

	assert.Equal(t, "Check that the embedding service is reachable", err.Suggestion)
}

func TestQuarryError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigNotFound, CategoryConfig},
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeIndexNotFound, CategoryStore},
		{ErrCodeIndexCorrupt, CategoryStore},
		{ErrCodeProviderTimeout, CategoryProvider},
		{ErrCodeEmbeddingFailed, CategoryProvider},
		{ErrCodeInvalidInput, CategoryValidation},
		{ErrCodeDimensionMismatch, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeSearchFailed, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestQuarryError_ConfigErrorsAreFatal(t *testing.T) {
	// Configuration problems must abort startup.
	for _, code := range []string{ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeCredentialsMissing} {
		err := New(code, "boom", nil)
		assert.True(t, IsFatal(err), "code %s should be fatal", code)
	}

	assert.False(t, IsFatal(New(ErrCodeSearchFailed, "boom", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestQuarryError_RetryableCodes(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeProviderTimeout, "slow", nil)))
	assert.True(t, IsRetryable(New(ErrCodeProviderUnavailable, "down", nil)))
	assert.False(t, IsRetryable(New(ErrCodeDimensionMismatch, "384 != 768", nil)))
	assert.False(t, IsRetryable(nil))
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWrap_PreservesChain(t *testing.T) {
	inner := errors.New("disk exploded")
	mid := fmt.Errorf("opening shard: %w", inner)

	qErr := Wrap(ErrCodeIndexCorrupt, mid)

	require.NotNil(t, qErr)
	assert.True(t, errors.Is(qErr, inner), "wrapped chain should reach the innermost error")
	assert.Equal(t, ErrCodeIndexCorrupt, GetCode(qErr))
	assert.Equal(t, CategoryStore, GetCategory(qErr))
}

func TestGetCode_PlainErrorReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}

func TestConstructors_AssignExpectedCodes(t *testing.T) {
	assert.Equal(t, ErrCodeConfigInvalid, ConfigError("c", nil).Code)
	assert.Equal(t, ErrCodeIndexNotFound, StoreError("s", nil).Code)
	assert.Equal(t, ErrCodeProviderUnavailable, ProviderError("p", nil).Code)
	assert.Equal(t, ErrCodeInvalidInput, ValidationError("v", nil).Code)
	assert.Equal(t, ErrCodeInternal, InternalError("i", nil).Code)
}
