package ranking

import (
	"context"

	"github.com/talentdex/talentdex/internal/domain"
)

// DocumentSource lists a collection's documents.
type DocumentSource interface {
	List(ctx context.Context, collection string) ([]domain.Document, error)
}

// Store persists ranking tables per collection. A save fully replaces any
// prior table.
type Store interface {
	SaveRanking(collection string, entries []domain.RankingEntry) error
	LoadRanking(collection string) ([]domain.RankingEntry, error)
}

// KeywordExtractor extracts domain keywords from text.
type KeywordExtractor interface {
	Extract(text string) []string
}
