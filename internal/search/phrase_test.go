package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhraseMatchScoreFullPhrase(t *testing.T) {
	score := PhraseMatchScore("refund policy", "Our refund policy allows returns within 30 days.")
	// Full phrase +10, adjacent bigram +3, both words +0.5 each.
	assert.InDelta(t, 14.0, score, 1e-9)
}

func TestPhraseMatchScoreGappedBigram(t *testing.T) {
	score := PhraseMatchScore("refund policy", "The refund and policy details are listed below.")
	// "refund and policy": one intervening word (stopwords still occupy
	// positions) gives +1.5, plus +0.5 per word.
	assert.InDelta(t, 2.5, score, 1e-9)
}

func TestPhraseMatchScoreWordsOnly(t *testing.T) {
	score := PhraseMatchScore("refund policy", "policy documents mention a refund elsewhere entirely")
	// Words present but never in order within 2 positions.
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestPhraseMatchScoreNoMatch(t *testing.T) {
	assert.Zero(t, PhraseMatchScore("refund policy", "completely unrelated text"))
}

func TestPhraseMatchScoreStopwordsDropped(t *testing.T) {
	// "the" and "for" are stopwords; only "payment" counts.
	score := PhraseMatchScore("the payment for", "payment received")
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestPhraseMatchScoreSpanishStopwords(t *testing.T) {
	score := PhraseMatchScore("los términos del contrato", "términos contrato")
	// Content words: términos, contrato. Adjacent in text but the
	// bigram check follows query order: términos then contrato,
	// adjacent -> +3, plus +0.5 each.
	assert.InDelta(t, 14.0, score, 1e-9)
}

func TestPhraseMatchScoreShortWordsIgnored(t *testing.T) {
	assert.Zero(t, PhraseMatchScore("a an it", "a an it"))
	assert.Zero(t, PhraseMatchScore("", "anything"))
}

func TestPhraseMatchScoreCaseInsensitive(t *testing.T) {
	assert.Equal(t,
		PhraseMatchScore("Refund Policy", "REFUND POLICY applies"),
		PhraseMatchScore("refund policy", "refund policy applies"))
}
