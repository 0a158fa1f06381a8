package cite

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quarry-search/quarry/internal/store"
)

func srcCtx() SourceContext {
	return SourceContext{
		KnownSources: map[string]bool{
			"manual.pdf":  true,
			"catalog.pdf": true,
		},
		DocumentSources: map[string]string{
			"doc-42": "catalog.pdf",
		},
		Fallback: "manual.pdf",
	}
}

func TestExtractSourceValidated(t *testing.T) {
	c := &store.Chunk{Source: "manual.pdf"}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source)
	assert.Equal(t, SourceConfValidated, conf)
}

func TestExtractSourceNormalizesPath(t *testing.T) {
	c := &store.Chunk{Metadata: map[string]any{"source": "/data/docs/manual.pdf"}}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source)
	assert.Equal(t, SourceConfValidated, conf)
}

func TestExtractSourceAlternateKeys(t *testing.T) {
	for _, key := range []string{"document_name", "file_name", "filename", "doc_name"} {
		c := &store.Chunk{Metadata: map[string]any{key: "catalog.pdf"}}
		source, conf := ExtractSource(c, srcCtx())
		assert.Equal(t, "catalog.pdf", source, "key %s", key)
		assert.Equal(t, SourceConfAlternate, conf)
	}
}

func TestExtractSourceUnvalidatedSkipsTier(t *testing.T) {
	// A source that is not registered falls through to lower tiers.
	c := &store.Chunk{Source: "ghost.pdf"}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source, "fallback tier")
	assert.Equal(t, SourceConfFallback, conf)
}

func TestExtractSourceFromTextTag(t *testing.T) {
	c := &store.Chunk{Text: "As noted in [Source 3: catalog.pdf (Page 12)] the part number..."}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "catalog.pdf", source)
	assert.Equal(t, SourceConfTextRegex, conf)

	// Tag without the page suffix.
	c = &store.Chunk{Text: "see [Source 1: manual.pdf] for details"}
	source, conf = ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source)
	assert.Equal(t, SourceConfTextRegex, conf)
}

func TestExtractSourceByDocumentID(t *testing.T) {
	c := &store.Chunk{DocumentID: "doc-42"}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "catalog.pdf", source)
	assert.Equal(t, SourceConfChunkIdx, conf)
}

func TestExtractSourceFallback(t *testing.T) {
	c := &store.Chunk{}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source)
	assert.Equal(t, SourceConfFallback, conf)
}

func TestExtractSourceUnknown(t *testing.T) {
	c := &store.Chunk{}
	source, conf := ExtractSource(c, SourceContext{})
	assert.Equal(t, UnknownSource, source)
	assert.Equal(t, SourceConfUnknown, conf)
}

func TestExtractSourceNestedMetadata(t *testing.T) {
	c := &store.Chunk{Metadata: map[string]any{
		"metadata": map[string]any{"source": "manual.pdf"},
	}}
	source, conf := ExtractSource(c, srcCtx())
	assert.Equal(t, "manual.pdf", source)
	assert.Equal(t, SourceConfValidated, conf)
}
