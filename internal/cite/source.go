package cite

import (
	"regexp"

	"github.com/quarry-search/quarry/internal/store"
)

// sourceTagRe matches inline source tags left by previous assembly
// passes, e.g. "[Source 3: manual.pdf (Page 12)]".
var sourceTagRe = regexp.MustCompile(`\[Source \d+:\s*([^\]]+?)(\s*\(Page\s+\d+\))?\]`)

// alternateSourceKeys are metadata keys different ingestion pipelines
// have used for the document name.
var alternateSourceKeys = []string{"document_name", "file_name", "filename", "doc_name"}

// SourceContext is what source extraction validates against.
type SourceContext struct {
	// KnownSources is the set of registered document names.
	KnownSources map[string]bool

	// DocumentSources maps document_id to document name, for the
	// chunk-index tier.
	DocumentSources map[string]string

	// Fallback is the caller-supplied last-resort name (typically the
	// first active source of the request).
	Fallback string
}

// ExtractSource recovers the document name for a chunk. The tier chain
// stops at the first hit; confidence reflects the tier, and the result
// is always normalized to a basename.
func ExtractSource(c *store.Chunk, sctx SourceContext) (string, float64) {
	// Tier 1: canonical source field (writers normalize metadata.source
	// into it), validated against the registry.
	if src := candidateSource(c); src != "" && sctx.known(src) {
		return store.NormalizeSource(src), SourceConfValidated
	}

	// Tier 2: alternate metadata keys, validated.
	for _, key := range alternateSourceKeys {
		if v, ok := c.MetaString(key); ok && v != "" && sctx.known(v) {
			return store.NormalizeSource(v), SourceConfAlternate
		}
	}

	// Tier 3: source tag embedded in the chunk text.
	if m := sourceTagRe.FindStringSubmatch(c.Text); m != nil {
		return store.NormalizeSource(m[1]), SourceConfTextRegex
	}

	// Tier 4: document ID lookup.
	if c.DocumentID != "" {
		if name, ok := sctx.DocumentSources[c.DocumentID]; ok && name != "" {
			return store.NormalizeSource(name), SourceConfChunkIdx
		}
	}

	// Tier 5: caller fallback.
	if sctx.Fallback != "" {
		return store.NormalizeSource(sctx.Fallback), SourceConfFallback
	}

	return UnknownSource, SourceConfUnknown
}

func candidateSource(c *store.Chunk) string {
	if c.Source != "" {
		return c.Source
	}
	if v, ok := c.MetaString("source"); ok {
		return v
	}
	return ""
}

func (s SourceContext) known(name string) bool {
	if len(s.KnownSources) == 0 {
		return false
	}
	return s.KnownSources[store.NormalizeSource(name)]
}
