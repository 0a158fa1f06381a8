package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("hi"), "short text rounds up to one token")
	assert.Equal(t, 25, Estimate(strings.Repeat("a", 100)))
}

func TestEstimateCounter(t *testing.T) {
	var c Counter = EstimateCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 256, c.Count(strings.Repeat("word ", 1024)[:1024]))
}

func TestTiktokenCounterNeverZeroForText(t *testing.T) {
	// Whether the encoding loads or the estimator kicks in, non-empty
	// text must count as at least one token.
	c := NewCounter("gpt-4o")
	assert.Equal(t, 0, c.Count(""))
	assert.GreaterOrEqual(t, c.Count("hello world"), 1)
}

func TestTiktokenCounterMonotonic(t *testing.T) {
	c := NewCounter("gpt-4o")
	short := c.Count("refund policy")
	long := c.Count(strings.Repeat("refund policy and warranty terms ", 50))
	assert.Greater(t, long, short)
}
