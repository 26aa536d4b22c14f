package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/roomscout/listing-corpus/internal/embed"
	"github.com/roomscout/listing-corpus/internal/listing"
)

// Config tunes how the two sub-searches are combined.
type Config struct {
	// KeywordWeight and VectorWeight multiply the normalized sub-scores.
	KeywordWeight float64
	VectorWeight  float64

	// CandidateMultiplier sizes each sub-search's candidate pool as a
	// multiple of the requested top-K.
	CandidateMultiplier int
}

// RankedListing is one search hit with its combined and per-signal scores.
type RankedListing struct {
	listing.Listing

	Score        float64 `json:"score"`
	KeywordScore float64 `json:"keyword_score"`
	VectorScore  float64 `json:"vector_score"`
}

// Engine ranks listings for a free-text query by fusing keyword relevance
// with embedding cosine similarity.
type Engine struct {
	cfg      Config
	store    listing.Store
	index    *KeywordIndex
	provider embed.Provider
	logger   *zap.Logger
}

// New assembles a retrieval engine. The provider embeds queries on demand;
// listings without a stored embedding simply never score on the vector side.
func New(cfg Config, store listing.Store, index *KeywordIndex, provider embed.Provider, logger *zap.Logger) (*Engine, error) {
	if store == nil || index == nil || provider == nil {
		return nil, fmt.Errorf("store, index, and provider are required")
	}
	if cfg.KeywordWeight < 0 || cfg.VectorWeight < 0 {
		return nil, fmt.Errorf("search weights must be >= 0")
	}
	if cfg.KeywordWeight+cfg.VectorWeight == 0 {
		cfg.KeywordWeight = 0.7
		cfg.VectorWeight = 0.3
	}
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, store: store, index: index, provider: provider, logger: logger}, nil
}

// SyncIndex rebuilds the keyword index from the store.
func (e *Engine) SyncIndex(ctx context.Context) (int, error) {
	return e.index.Sync(ctx, e.store)
}

// Search returns the top-K listings for the query. A blank query or one
// that matches nothing yields an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]RankedListing, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return []RankedListing{}, nil
	}
	poolSize := topK * e.cfg.CandidateMultiplier

	keyword, err := e.index.Search(query, poolSize)
	if err != nil {
		return nil, err
	}

	vector, err := e.vectorScores(ctx, query, poolSize)
	if err != nil {
		return nil, err
	}

	if len(keyword) == 0 && len(vector) == 0 {
		return []RankedListing{}, nil
	}

	fused := fuse(minMaxNormalize(keyword), minMaxNormalize(vector), e.cfg.KeywordWeight, e.cfg.VectorWeight)

	ranked := make([]RankedListing, 0, len(fused))
	for id, score := range fused {
		row, err := e.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load candidate %d: %w", id, err)
		}
		ranked = append(ranked, RankedListing{
			Listing:      row,
			Score:        score,
			KeywordScore: keyword[id],
			VectorScore:  vector[id],
		})
	}
	sortRanked(ranked)

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	e.logger.Debug("search complete",
		zap.String("query", query),
		zap.Int("keyword_hits", len(keyword)),
		zap.Int("vector_hits", len(vector)),
		zap.Int("returned", len(ranked)))
	return ranked, nil
}

// vectorScores embeds the query and scores it against every stored
// embedding, keeping the best poolSize candidates.
func (e *Engine) vectorScores(ctx context.Context, query string, poolSize int) (map[int64]float64, error) {
	rows, err := e.store.ListEmbedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("load embedded listings: %w", err)
	}
	if len(rows) == 0 {
		return map[int64]float64{}, nil
	}

	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for one query", len(vectors))
	}
	queryVec := vectors[0]

	type scored struct {
		id    int64
		score float64
	}
	hits := make([]scored, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, scored{id: row.ID, score: cosine(queryVec, row.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > poolSize {
		hits = hits[:poolSize]
	}

	out := make(map[int64]float64, len(hits))
	for _, h := range hits {
		out[h.id] = h.score
	}
	return out, nil
}

// cosine computes cosine similarity; mismatched or zero-norm vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// minMaxNormalize rescales scores into [0, 1]. A single candidate, or a set
// of identical scores, maps to 1 so the signal still counts fully.
func minMaxNormalize(scores map[int64]float64) map[int64]float64 {
	if len(scores) == 0 {
		return scores
	}
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, s := range scores {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	out := make(map[int64]float64, len(scores))
	if hi == lo {
		for id := range scores {
			out[id] = 1
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - lo) / (hi - lo)
	}
	return out
}

// fuse combines normalized sub-scores over the union of candidates. A
// candidate absent from one sub-search contributes 0 on that side.
func fuse(keyword, vector map[int64]float64, keywordWeight, vectorWeight float64) map[int64]float64 {
	out := make(map[int64]float64, len(keyword)+len(vector))
	for id, s := range keyword {
		out[id] = keywordWeight * s
	}
	for id, s := range vector {
		out[id] += vectorWeight * s
	}
	return out
}

// sortRanked orders by combined score, breaking ties by higher rating, then
// lower price, then id for stability.
func sortRanked(ranked []RankedListing) {
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ar, br := ratingOf(a.Listing), ratingOf(b.Listing)
		if ar != br {
			return ar > br
		}
		if a.PricePerPerson != b.PricePerPerson {
			return a.PricePerPerson < b.PricePerPerson
		}
		return a.ID < b.ID
	})
}

func ratingOf(l listing.Listing) float64 {
	if l.Rating == nil {
		return 0
	}
	return *l.Rating
}
