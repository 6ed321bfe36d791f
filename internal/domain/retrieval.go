package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Fusion weights. Fixed policy constants mirroring the ranking weights.
const (
	DefaultVectorWeightRanked  = 0.4
	DefaultRankingWeight       = 0.3
	DefaultKeywordWeightRanked = 0.3

	DefaultVectorWeightUnranked  = 0.6
	DefaultKeywordWeightUnranked = 0.4
)

// Candidate is a retrieval result: a document scored against a question.
// RankingScore and Rank are only meaningful when HasRanking is true.
type Candidate struct {
	DocumentID       string   `json:"document_id"`
	Rank             int      `json:"rank,omitempty"`
	HasRanking       bool     `json:"has_ranking"`
	VectorDistance   float64  `json:"vector_distance"`
	VectorSimilarity float64  `json:"vector_similarity"`
	RankingScore     float64  `json:"ranking_score,omitempty"`
	KeywordScore     float64  `json:"keyword_score"`
	FusedScore       float64  `json:"fused_score"`
	Keywords         []string `json:"keywords,omitempty"`
	Excerpt          string   `json:"excerpt,omitempty"`
}

// Filter narrows retrieval results after score fusion. Nil pointer fields
// are unset. A candidate without a ranking entry never passes a rank-range
// or min-score bound.
type Filter struct {
	MinRankPosition  *int     `json:"min_rank_position,omitempty"`
	MaxRankPosition  *int     `json:"max_rank_position,omitempty"`
	MinRankingScore  *float64 `json:"min_ranking_score,omitempty"`
	RequiredKeywords []string `json:"required_keywords,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f *Filter) IsZero() bool {
	if f == nil {
		return true
	}
	return f.MinRankPosition == nil && f.MaxRankPosition == nil &&
		f.MinRankingScore == nil && len(f.RequiredKeywords) == 0
}

// Fingerprint returns a canonical string representation, stable across
// field and keyword ordering. Used for cache key derivation.
func (f *Filter) Fingerprint() string {
	if f.IsZero() {
		return "-"
	}
	var b strings.Builder
	if f.MinRankPosition != nil {
		fmt.Fprintf(&b, "minrank=%d;", *f.MinRankPosition)
	}
	if f.MaxRankPosition != nil {
		fmt.Fprintf(&b, "maxrank=%d;", *f.MaxRankPosition)
	}
	if f.MinRankingScore != nil {
		fmt.Fprintf(&b, "minscore=%.6f;", *f.MinRankingScore)
	}
	if len(f.RequiredKeywords) > 0 {
		kw := make([]string, len(f.RequiredKeywords))
		for i, k := range f.RequiredKeywords {
			kw[i] = strings.ToLower(strings.TrimSpace(k))
		}
		sort.Strings(kw)
		fmt.Fprintf(&b, "required=%s;", strings.Join(kw, ","))
	}
	return b.String()
}
