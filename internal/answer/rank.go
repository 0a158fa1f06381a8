package answer

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/quarry-search/quarry/internal/cite"
	"github.com/quarry-search/quarry/internal/config"
	"github.com/quarry-search/quarry/internal/search"
)

// scoreRegime classifies the similarity-score distribution so display
// percentages match the scheme that produced the scores.
type scoreRegime int

const (
	regimeSimilarity scoreRegime = iota
	regimeRRF
	regimeMixed
	regimePacked
	regimeDistance
)

// Ranker orders citations and assigns display percentages.
type Ranker struct {
	cfg    config.RankingConfig
	logger *slog.Logger
}

// NewRanker creates a ranker from the ranking config.
func NewRanker(cfg config.RankingConfig, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{cfg: cfg, logger: logger}
}

// Rank filters irrelevant citations, orders the survivors, assigns
// percentages, and renumbers. Rerank scores take over when they cover
// enough of the set; otherwise ordering adapts to the detected scoring
// regime.
func (r *Ranker) Rank(citations []cite.Citation, query string) []cite.Citation {
	if len(citations) == 0 {
		return citations
	}

	keywords := search.Keywords(query)

	var kept []scoredCitation
	for _, c := range citations {
		rel := r.contentRelevance(c.Snippet, query, keywords)
		if rel.rejected(len(keywords)) {
			continue
		}
		kept = append(kept, scoredCitation{c: c, rel: rel})
	}
	if len(kept) == 0 {
		return []cite.Citation{}
	}

	if r.rerankCoverage(kept) && rerankSignal(kept) {
		sort.SliceStable(kept, func(i, j int) bool {
			a, b := kept[i], kept[j]
			as, bs := deref(a.c.RerankScore), deref(b.c.RerankScore)
			if as != bs {
				return as > bs
			}
			return a.rel.score > b.rel.score
		})

		maxRerank := deref(kept[0].c.RerankScore)
		floor := r.cfg.RerankFloorPct
		if floor <= 0 {
			floor = 5
		}
		for i := range kept {
			pct := 0.0
			if maxRerank > 0 {
				pct = deref(kept[i].c.RerankScore) / maxRerank * 100
			}
			if pct < floor {
				pct = floor
			}
			kept[i].c.SimilarityPercentage = pct
		}
		return r.finish(kept)
	}

	scores := make([]float64, 0, len(kept))
	for _, s := range kept {
		if s.c.SimilarityScore != nil {
			scores = append(scores, *s.c.SimilarityScore)
		}
	}

	switch r.detectRegime(scores) {
	case regimeRRF, regimeMixed:
		// Raw scores are not comparable; content relevance orders.
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].rel.score > kept[j].rel.score
		})
		maxRel := kept[0].rel.score
		for i := range kept {
			if i == 0 {
				kept[i].c.SimilarityPercentage = 100
				continue
			}
			pct := 50.0
			if maxRel > 0 {
				pct = 50 + kept[i].rel.score/maxRel*45
			}
			kept[i].c.SimilarityPercentage = pct
		}

	case regimePacked:
		sort.SliceStable(kept, func(i, j int) bool {
			return deref(kept[i].c.SimilarityScore) > deref(kept[j].c.SimilarityScore)
		})
		for i := range kept {
			pct := 100.0 - float64(i)*5
			if pct < 70 {
				pct = 70
			}
			kept[i].c.SimilarityPercentage = pct
		}

	case regimeDistance:
		// Lower is better.
		sort.SliceStable(kept, func(i, j int) bool {
			return deref(kept[i].c.SimilarityScore) < deref(kept[j].c.SimilarityScore)
		})
		best := deref(kept[0].c.SimilarityScore)
		worst := deref(kept[len(kept)-1].c.SimilarityScore)
		span := worst - best
		for i := range kept {
			pct := 100.0
			if span > 0 {
				pct = (worst - deref(kept[i].c.SimilarityScore)) / span * 100
			}
			kept[i].c.SimilarityPercentage = pct
		}

	default: // similarity
		sort.SliceStable(kept, func(i, j int) bool {
			return deref(kept[i].c.SimilarityScore) > deref(kept[j].c.SimilarityScore)
		})
		best := deref(kept[0].c.SimilarityScore)
		worst := deref(kept[len(kept)-1].c.SimilarityScore)
		span := best - worst
		for i := range kept {
			pct := 100.0
			if span > 0 {
				pct = (deref(kept[i].c.SimilarityScore) - worst) / span * 100
			}
			kept[i].c.SimilarityPercentage = pct
		}
	}

	return r.finish(kept)
}

// scoredCitation pairs a citation with its content relevance.
type scoredCitation struct {
	c   cite.Citation
	rel relevance
}

// finish runs the zero-percent guard and renumbers.
func (r *Ranker) finish(kept []scoredCitation) []cite.Citation {
	out := make([]cite.Citation, len(kept))
	for i, s := range kept {
		out[i] = s.c
	}
	if len(out) > 0 && out[0].SimilarityPercentage == 0 && out[0].SimilarityScore != nil {
		r.logger.Error("top_citation_zero_percent", "source", out[0].Source)
		out[0].SimilarityPercentage = 100
	}
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

// relevance is the keyword-based content score of one snippet.
type relevance struct {
	score        float64
	phraseHits   int
	contextHits  int
	totalMatches int
}

// rejected drops citations whose snippet shows no real engagement with
// the query.
func (r relevance) rejected(keywordCount int) bool {
	if keywordCount == 0 {
		return false
	}
	return r.phraseHits == 0 && r.contextHits == 0 && r.totalMatches < 2
}

// contentRelevance scores a snippet: full phrase ×3, context-validated
// keyword ×1.5 (another keyword within the window), bare keyword ×0.5,
// normalized by the theoretical maximum.
func (r *Ranker) contentRelevance(snippet, query string, keywords []string) relevance {
	if len(keywords) == 0 {
		return relevance{}
	}

	w := r.cfg.Relevance
	phraseWeight := weightOr(w.PhraseWeight, 3)
	contextWeight := weightOr(w.ContextWeight, 1.5)
	bareWeight := weightOr(w.BareWeight, 0.5)
	window := w.ContextWindow
	if window <= 0 {
		window = 30
	}

	lower := strings.ToLower(snippet)
	var rel relevance
	var raw float64

	phrase := strings.ToLower(strings.TrimSpace(query))
	if len(keywords) > 1 && strings.Contains(lower, phrase) {
		rel.phraseHits++
		raw += phraseWeight
	}

	positions := make(map[string][]int, len(keywords))
	for _, kw := range keywords {
		offset := 0
		for {
			idx := strings.Index(lower[offset:], kw)
			if idx < 0 {
				break
			}
			positions[kw] = append(positions[kw], offset+idx)
			offset += idx + len(kw)
		}
	}

	for _, kw := range keywords {
		occ := positions[kw]
		if len(occ) == 0 {
			continue
		}
		rel.totalMatches += len(occ)
		if hasNeighbor(kw, occ, keywords, positions, window) {
			rel.contextHits++
			raw += contextWeight
		} else {
			raw += bareWeight
		}
	}

	max := phraseWeight + float64(len(keywords))*contextWeight
	rel.score = raw / max
	return rel
}

// hasNeighbor reports whether any occurrence of kw has a different
// keyword within the window.
func hasNeighbor(kw string, occ []int, keywords []string, positions map[string][]int, window int) bool {
	for _, pos := range occ {
		for _, other := range keywords {
			if other == kw {
				continue
			}
			for _, op := range positions[other] {
				d := op - pos
				if d < 0 {
					d = -d
				}
				if d <= window+len(kw) {
					return true
				}
			}
		}
	}
	return false
}

// rerankSignal reports whether the rerank scores carry any information.
// An all-zero batch says nothing about relative order, so fused scores
// rank instead of pinning everything to the floor percentage.
func rerankSignal(kept []scoredCitation) bool {
	for _, s := range kept {
		if s.c.RerankScore != nil && *s.c.RerankScore != 0 {
			return true
		}
	}
	return false
}

// rerankCoverage reports whether enough citations carry rerank scores
// for rerank ordering to apply.
func (r *Ranker) rerankCoverage(kept []scoredCitation) bool {
	minCoverage := r.cfg.RerankCoverageMin
	if minCoverage <= 0 {
		minCoverage = 0.5
	}
	n := 0
	for _, s := range kept {
		if s.c.RerankScore != nil {
			n++
		}
	}
	return float64(n) >= minCoverage*float64(len(kept))
}

// detectRegime classifies the similarity-score distribution.
func (r *Ranker) detectRegime(scores []float64) scoreRegime {
	if len(scores) == 0 {
		return regimeSimilarity
	}
	best, worst := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
		if s < worst {
			worst = s
		}
	}
	spread := best - worst

	t := r.cfg.Regimes
	if best < thresholdOr(t.RRFMaxScore, 0.05) && spread < thresholdOr(t.RRFMaxSpread, 0.01) {
		return regimeRRF
	}
	ratio := 0.0
	if worst > 0 {
		ratio = best / worst
	}
	if ratio > thresholdOr(t.MixedRatio, 50) ||
		(best > thresholdOr(t.MixedBestMin, 0.5) && worst < thresholdOr(t.MixedWorstMax, 0.01)) {
		return regimeMixed
	}
	if best > 0 && spread/best < thresholdOr(t.PackedRangePct, 0.15) {
		return regimePacked
	}
	if best > thresholdOr(t.DistanceMaxMin, 1.0) && worst > thresholdOr(t.DistanceWorstMin, 0.5) {
		return regimeDistance
	}
	return regimeSimilarity
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func weightOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func thresholdOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
