package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-search/quarry/internal/config"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Search.DefaultK = 5
	cfg.Search.MaxK = 50
	cfg.Search.Agentic = true
	return NewClassifier(cfg)
}

func TestClassifyOccurrencePatterns(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		query string
		term  string
	}{
		{`find all occurrences of "pressure valve"`, "pressure valve"},
		{`occurrences of safety`, "safety"},
		{`how many occurrences of the word torque?`, "torque"},
		{`where does calibration appear`, "calibration"},
		{`where do warnings show up`, "warnings"},
		{`find all serial numbers`, "serial numbers"},
		{`show me all "error codes"`, "error codes"},
		{`highlight every "warning" in the manual`, "warning"},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			p := c.Classify(tc.query, 5, nil, nil)
			require.Equal(t, TypeOccurrence, p.Type)
			assert.Equal(t, tc.term, p.Term)
			assert.True(t, p.DisableRerank)
		})
	}
}

func TestClassifyOccurrenceExclusions(t *testing.T) {
	c := newTestClassifier(t)

	for _, query := range []string{
		`what is all "pressure valve" about`,
		`explain the occurrence of corrosion`,
		`tell me about all the "error codes"`,
		`details about occurrences of rust`,
	} {
		p := c.Classify(query, 5, nil, nil)
		assert.NotEqual(t, TypeOccurrence, p.Type, "query: %s", query)
	}
}

func TestClassifySummaryWidensK(t *testing.T) {
	c := newTestClassifier(t)

	p := c.Classify("give me a summary of the maintenance schedule", 5, nil, nil)
	require.Equal(t, TypeSummary, p.Type)
	assert.Equal(t, 20, p.K, "k doubled then floored at the summary minimum")
	assert.True(t, p.Agentic)
	assert.False(t, p.DisableRerank)

	p = c.Classify("summarize the warranty", 15, nil, nil)
	assert.Equal(t, 30, p.K)
}

func TestClassifyContactDisablesRerank(t *testing.T) {
	c := newTestClassifier(t)

	p := c.Classify("what is the support email address", 5, nil, nil)
	require.Equal(t, TypeContact, p.Type)
	assert.True(t, p.DisableRerank)

	p = c.Classify("cuál es el teléfono de contacto", 5, nil, nil)
	assert.Equal(t, TypeContact, p.Type)
}

func TestClassifyGeneralDefaults(t *testing.T) {
	c := newTestClassifier(t)

	p := c.Classify("torque spec for the head bolts", 0, nil, nil)
	assert.Equal(t, TypeGeneral, p.Type)
	assert.Equal(t, 5, p.K, "zero k falls back to the default")
	assert.False(t, p.DisableRerank)
	assert.False(t, p.Agentic)
}

func TestClassifyComplexGoesAgentic(t *testing.T) {
	c := newTestClassifier(t)

	p := c.Classify("compare the 2023 and 2024 maintenance procedures", 5, nil, nil)
	assert.Equal(t, TypeGeneral, p.Type)
	assert.True(t, p.Agentic)

	// Agentic disabled in config: stays off.
	c.cfg.Search.Agentic = false
	p = c.Classify("compare the 2023 and 2024 maintenance procedures", 5, nil, nil)
	assert.False(t, p.Agentic)
}

func TestClassifyDocumentScoping(t *testing.T) {
	c := newTestClassifier(t)
	known := []string{"service manual.pdf", "parts-catalog.pdf"}

	p := c.Classify("torque specs in the service manual", 5, nil, known)
	assert.Equal(t, []string{"service manual.pdf"}, p.ActiveSources)

	// Multi-word names need every word.
	p = c.Classify("anything about the manual", 5, nil, known)
	assert.Empty(t, p.ActiveSources)

	// Explicit scope wins over detection.
	p = c.Classify("torque specs in the service manual", 5, []string{"parts-catalog.pdf"}, known)
	assert.Equal(t, []string{"parts-catalog.pdf"}, p.ActiveSources)
}

func TestClassifyCapsAtMaxK(t *testing.T) {
	c := newTestClassifier(t)
	p := c.Classify("summarize everything", 40, nil, nil)
	assert.Equal(t, 50, p.K, "80 capped at max_k")
}
