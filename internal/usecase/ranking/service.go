// Package ranking scores every document in a collection against a job
// description: TF-IDF cosine similarity blended with keyword overlap into
// a single combined score, materialized as a dense 1-based ranking table.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/keywords"
)

// Weights blends the lexical and keyword scores. Zero value means the
// reference defaults (0.7 lexical, 0.3 keyword).
type Weights struct {
	Lexical float64
	Keyword float64
}

func (w Weights) orDefaults() Weights {
	if w.Lexical == 0 && w.Keyword == 0 {
		return Weights{Lexical: domain.DefaultLexicalWeight, Keyword: domain.DefaultKeywordWeight}
	}
	return w
}

// Service runs ranking passes over collections.
type Service struct {
	docs    DocumentSource
	store   Store
	kw      KeywordExtractor
	weights Weights
	logger  *zap.Logger
}

// New creates a ranking service.
func New(docs DocumentSource, store Store, kw KeywordExtractor, weights Weights, logger *zap.Logger) *Service {
	return &Service{docs: docs, store: store, kw: kw, weights: weights.orDefaults(), logger: logger}
}

// Rank scores every document in the collection against jobDescription and
// replaces the collection's persisted ranking table wholesale. The result
// is deterministic for fixed inputs: same ranks, same scores.
func (s *Service) Rank(ctx context.Context, collection, jobDescription string) ([]domain.RankingEntry, error) {
	docs, err := s.docs.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("collection %q: %w", collection, domain.ErrEmptyCollection)
	}
	if len(tokenize(jobDescription)) == 0 {
		return nil, fmt.Errorf("job description: %w", domain.ErrEmptyQuery)
	}

	entries := s.score(docs, jobDescription)

	if err := s.store.SaveRanking(collection, entries); err != nil {
		return nil, fmt.Errorf("persist ranking: %w", err)
	}

	s.logger.Info("Ranking completed",
		zap.String("collection", collection),
		zap.Int("documents", len(docs)),
		zap.Float64("lexical_weight", s.weights.Lexical),
		zap.Float64("keyword_weight", s.weights.Keyword),
	)
	return entries, nil
}

// score computes ranking entries for docs against jobDescription.
func (s *Service) score(docs []domain.Document, jobDescription string) []domain.RankingEntry {
	// Shared vector space over the documents and the job description.
	corpus := make([]string, 0, len(docs)+1)
	for _, d := range docs {
		corpus = append(corpus, d.Text)
	}
	corpus = append(corpus, jobDescription)
	v := fit(corpus)

	var jdVec []float64
	if v != nil {
		jdVec = v.transform(jobDescription)
	}
	jdKeywords := s.kw.Extract(jobDescription)

	entries := make([]domain.RankingEntry, len(docs))
	for i, doc := range docs {
		var lexical float64
		if v != nil {
			lexical = clamp01(cosine(v.transform(doc.Text), jdVec))
		}

		docKeywords := s.kw.Extract(doc.Text)
		matched, missing := keywords.Partition(jdKeywords, docKeywords)
		keywordScore := keywords.Overlap(jdKeywords, docKeywords)

		entries[i] = domain.RankingEntry{
			DocumentID:      doc.ID,
			LexicalScore:    lexical,
			KeywordScore:    keywordScore,
			CombinedScore:   clamp01(s.weights.Lexical*lexical + s.weights.Keyword*keywordScore),
			MatchedKeywords: matched,
			MissingKeywords: missing,
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CombinedScore != entries[j].CombinedScore {
			return entries[i].CombinedScore > entries[j].CombinedScore
		}
		return entries[i].DocumentID < entries[j].DocumentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Table returns the persisted ranking table for the collection, or
// os.ErrNotExist when it has never been ranked.
func (s *Service) Table(_ context.Context, collection string) ([]domain.RankingEntry, error) {
	entries, err := s.store.LoadRanking(collection)
	if err != nil {
		return nil, fmt.Errorf("load ranking for %q: %w", collection, err)
	}
	return entries, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
