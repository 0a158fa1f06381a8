// Package plan classifies queries and expands them into retrieval
// plans: occurrence enumeration, widened summary retrieval, contact
// lookups, document scoping, and agentic decomposition.
package plan

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/quarry-search/quarry/internal/config"
)

// QueryType is the planner's classification of a query.
type QueryType string

const (
	TypeGeneral    QueryType = "general"
	TypeOccurrence QueryType = "occurrence"
	TypeSummary    QueryType = "summary"
	TypeContact    QueryType = "contact"
)

// Plan is the retrieval plan for one query.
type Plan struct {
	Type  QueryType
	Query string

	// Term is the phrase to enumerate for occurrence queries.
	Term string

	// K is the retrieval depth after type-specific widening.
	K int

	// DisableRerank is set for occurrence and contact queries where
	// cross-encoder ordering hurts exhaustiveness.
	DisableRerank bool

	// Agentic requests LLM decomposition into sub-queries.
	Agentic bool

	// ActiveSources is the possibly narrowed document scope.
	ActiveSources []string
}

var (
	quotedTermRe = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)

	occurrenceOfRe = regexp.MustCompile(`(?i)\boccurrences?\s+of\s+(?:the\s+(?:word|term|phrase)\s+)?["']?([^"'?.!]+?)["']?\s*[?.!]?\s*$`)
	whereAppearRe  = regexp.MustCompile(`(?i)\bwhere\s+(?:does|do)\s+["']?(.+?)["']?\s+(?:appear|occur|show\s+up)\b`)
	findAllRe      = regexp.MustCompile(`(?i)^(?:find|show\s+me)\s+all\s+(?:instances\s+of\s+|mentions\s+of\s+)?["']?([^"'?.!]+?)["']?\s*[?.!]?\s*$`)

	occurrenceTriggers = []string{"occurrence", "find all", "show me all", "highlight"}

	occurrenceExclusions = []string{
		"what is", "what are", "how does", "explain", "describe",
		"tell me about", "information about", "details about",
	}

	summaryTriggers = []string{
		"summary", "summarize", "summarise", "overview",
		"what is this document about", "what is the document about",
		"describe the document", "tell me about this document",
		"main points", "key points",
	}

	contactTriggers = []string{
		"email", "e-mail", "phone", "telephone", "contact",
		"correo", "teléfono", "contacto",
	}
)

// Classifier plans queries using the search section of the config.
type Classifier struct {
	cfg *config.Config
}

// NewClassifier creates a classifier.
func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify builds the plan. knownDocs is the full document-name list
// used for document scoping; activeSources is the caller's explicit
// scope (kept unless empty and a document name is detected).
func (c *Classifier) Classify(query string, k int, activeSources, knownDocs []string) Plan {
	if k <= 0 {
		k = c.cfg.Search.DefaultK
	}
	p := Plan{
		Type:          TypeGeneral,
		Query:         query,
		K:             k,
		ActiveSources: activeSources,
	}

	lower := strings.ToLower(query)

	if term, ok := c.occurrenceTerm(query, lower); ok {
		p.Type = TypeOccurrence
		p.Term = term
		p.DisableRerank = true
	} else if containsAny(lower, summaryTriggers) {
		p.Type = TypeSummary
		widened := int(float64(k) * c.summaryMultiplier())
		if min := c.summaryKMin(); widened < min {
			widened = min
		}
		p.K = widened
		p.Agentic = c.cfg.Search.Agentic
	} else if containsAny(lower, contactTriggers) {
		p.Type = TypeContact
		p.DisableRerank = true
	} else if c.cfg.Search.Agentic && looksComplex(lower) {
		p.Agentic = true
	}

	if len(p.ActiveSources) == 0 {
		if doc, ok := detectDocument(lower, knownDocs); ok {
			p.ActiveSources = []string{doc}
		}
	}

	if max := c.cfg.Search.MaxK; max > 0 && p.K > max {
		p.K = max
	}
	return p
}

// occurrenceTerm extracts the term when the query is an occurrence
// request. Explanation-style phrasings override the triggers.
func (c *Classifier) occurrenceTerm(query, lower string) (string, bool) {
	if containsAny(lower, occurrenceExclusions) {
		return "", false
	}

	if m := occurrenceOfRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := whereAppearRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := findAllRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	if containsAny(lower, occurrenceTriggers) {
		if m := quotedTermRe.FindStringSubmatch(query); m != nil {
			term := m[1]
			if term == "" {
				term = m[2]
			}
			return strings.TrimSpace(term), true
		}
	}
	return "", false
}

func (c *Classifier) summaryMultiplier() float64 {
	if c.cfg.Search.SummaryKMultiplier > 0 {
		return c.cfg.Search.SummaryKMultiplier
	}
	return 2
}

func (c *Classifier) summaryKMin() int {
	if c.cfg.Search.SummaryKMin > 0 {
		return c.cfg.Search.SummaryKMin
	}
	return 20
}

// looksComplex flags multi-part or comparative questions worth
// decomposing.
func looksComplex(lower string) bool {
	if strings.Count(lower, "?") > 1 {
		return true
	}
	for _, marker := range []string{" and also ", " as well as ", "compare", "difference between", " versus ", " vs ", " vs. "} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// detectDocument fuzzy-matches a known document name inside the query:
// every word of the name (extension stripped) must appear.
func detectDocument(lower string, knownDocs []string) (string, bool) {
	for _, doc := range knownDocs {
		base := strings.TrimSuffix(doc, filepath.Ext(doc))
		words := strings.FieldsFunc(strings.ToLower(base), func(r rune) bool {
			return r == ' ' || r == '-' || r == '_' || r == '.'
		})
		if len(words) == 0 {
			continue
		}
		all := false
		for _, w := range words {
			if len(w) < 2 {
				continue
			}
			if !strings.Contains(lower, w) {
				all = false
				break
			}
			all = true
		}
		if all {
			return doc, true
		}
	}
	return "", false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
