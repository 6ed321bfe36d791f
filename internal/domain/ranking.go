package domain

// Ranking score weights. Fixed policy constants; configurable but the
// defaults define the reference behavior.
const (
	DefaultLexicalWeight = 0.7
	DefaultKeywordWeight = 0.3
)

// RankingEntry is one row of a collection's ranking table: a candidate
// document scored against a job description. Ranks are 1-based and dense,
// strictly ordered by descending CombinedScore with ties broken by
// ascending DocumentID.
type RankingEntry struct {
	DocumentID      string   `json:"document_id"`
	Rank            int      `json:"rank"`
	LexicalScore    float64  `json:"lexical_score"`
	KeywordScore    float64  `json:"keyword_score"`
	CombinedScore   float64  `json:"combined_score"`
	MatchedKeywords []string `json:"matched_keywords"`
	MissingKeywords []string `json:"missing_keywords"`
}
