// Package cite turns retrieval results into citations: it recovers the
// source document and page for each chunk with explicit confidence
// scoring, and extracts display snippets.
package cite

import (
	"strconv"

	"github.com/quarry-search/quarry/internal/store"
)

// Page extraction methods, in rough order of trustworthiness.
const (
	MethodTextMarker    = "text_marker"
	MethodMetadata      = "metadata"
	MethodCharPosition  = "char_position"
	MethodImageMetadata = "image_metadata"
	MethodHeuristic     = "heuristic"
	MethodFallback      = "fallback"
)

// Citation content types.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// Source confidence tiers.
const (
	SourceConfValidated = 1.0
	SourceConfAlternate = 0.7
	SourceConfTextRegex = 0.5
	SourceConfChunkIdx  = 0.3
	SourceConfFallback  = 0.1
	SourceConfUnknown   = 0.0
)

// UnknownSource is the terminal source value when every tier fails.
const UnknownSource = "Unknown"

// Page bounds: no real document exceeds this.
const (
	MinPage = 1
	MaxPage = 10000
)

// Citation is one attributed retrieval result. Citations are built per
// request and never persisted.
type Citation struct {
	// ID is 1-based and assigned after ranking.
	ID int

	Source     string
	DocumentID string
	Page       int

	Snippet  string
	FullText string

	// SimilarityScore is the fused retrieval score; RerankScore the
	// cross-encoder score. Nil means the score does not exist, which is
	// different from zero.
	SimilarityScore *float64
	RerankScore     *float64

	// SimilarityPercentage is the display percentage (0-100) assigned
	// by ranking.
	SimilarityPercentage float64

	SourceConfidence     float64
	PageConfidence       float64
	PageExtractionMethod string

	ContentType string
	ImageRef    *store.ImageRef
	ChunkIndex  *int
}

// Location is the human-readable position. Image ordinals are never
// surfaced; an image citation still reads "Page N".
func (c *Citation) Location() string {
	return "Page " + strconv.Itoa(c.Page)
}

// contentTypeOf classifies the chunk for citation display.
func contentTypeOf(c *store.Chunk) string {
	if c.ContentType == store.ContentTypeImageOCR || c.ImageRef != nil {
		return ContentImage
	}
	if containsImageMarker(c.Text) {
		return ContentImage
	}
	return ContentText
}
