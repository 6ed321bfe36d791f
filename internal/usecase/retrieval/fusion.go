package retrieval

import (
	"sort"
	"strings"

	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/keywords"
	"github.com/talentdex/talentdex/internal/vecindex"
)

const excerptMaxChars = 300

// FusionWeights blends the three relevance signals. Zero value means the
// reference defaults: 0.4/0.3/0.3 with a ranking entry, 0.6/0.4 without.
type FusionWeights struct {
	VectorRanked    float64
	Ranking         float64
	KeywordRanked   float64
	VectorUnranked  float64
	KeywordUnranked float64
}

func (w FusionWeights) orDefaults() FusionWeights {
	if w == (FusionWeights{}) {
		return FusionWeights{
			VectorRanked:    domain.DefaultVectorWeightRanked,
			Ranking:         domain.DefaultRankingWeight,
			KeywordRanked:   domain.DefaultKeywordWeightRanked,
			VectorUnranked:  domain.DefaultVectorWeightUnranked,
			KeywordUnranked: domain.DefaultKeywordWeightUnranked,
		}
	}
	return w
}

// fuse converts broad-stage hits into scored candidates. Each hit's vector
// similarity is blended with its ranking-table combined score (when one
// exists) and its keyword overlap with the question.
func (s *Service) fuse(
	hits []vecindex.Hit,
	questionKeywords []string,
	rankTable map[string]domain.RankingEntry,
	texts map[string]string,
) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(hits))
	for _, hit := range hits {
		similarity := vecindex.Similarity(hit.Distance)
		docKeywords := s.kw.Extract(texts[hit.DocumentID])
		keywordScore := keywords.Overlap(questionKeywords, docKeywords)

		c := domain.Candidate{
			DocumentID:       hit.DocumentID,
			VectorDistance:   hit.Distance,
			VectorSimilarity: similarity,
			KeywordScore:     keywordScore,
			Keywords:         docKeywords,
			Excerpt:          excerpt(texts[hit.DocumentID]),
		}

		if entry, ok := rankTable[hit.DocumentID]; ok {
			c.HasRanking = true
			c.Rank = entry.Rank
			c.RankingScore = entry.CombinedScore
			c.FusedScore = s.weights.VectorRanked*similarity +
				s.weights.Ranking*entry.CombinedScore +
				s.weights.KeywordRanked*keywordScore
		} else {
			c.FusedScore = s.weights.VectorUnranked*similarity +
				s.weights.KeywordUnranked*keywordScore
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// applyFilter drops candidates failing any set predicate. Rank-range and
// min-score bounds require a ranking entry; unranked candidates cannot
// satisfy them.
func applyFilter(candidates []domain.Candidate, f *domain.Filter) []domain.Candidate {
	if f.IsZero() {
		return candidates
	}

	required := make([]string, len(f.RequiredKeywords))
	for i, k := range f.RequiredKeywords {
		required[i] = keywords.Normalize(k)
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if f.MinRankPosition != nil && (!c.HasRanking || c.Rank < *f.MinRankPosition) {
			continue
		}
		if f.MaxRankPosition != nil && (!c.HasRanking || c.Rank > *f.MaxRankPosition) {
			continue
		}
		if f.MinRankingScore != nil && (!c.HasRanking || c.RankingScore < *f.MinRankingScore) {
			continue
		}
		if len(required) > 0 && !supersetOf(c.Keywords, required) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// rankCandidates orders by fused score descending, ties by document id
// ascending, and truncates to topK.
func rankCandidates(candidates []domain.Candidate, topK int) []domain.Candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}
	return candidates
}

func supersetOf(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, k := range have {
		set[k] = struct{}{}
	}
	for _, k := range want {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= excerptMaxChars {
		return text
	}
	return string(runes[:excerptMaxChars]) + "..."
}
