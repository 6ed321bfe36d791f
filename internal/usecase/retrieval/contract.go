package retrieval

import (
	"context"

	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/vecindex"
)

// DocumentSource lists a collection's documents.
type DocumentSource interface {
	List(ctx context.Context, collection string) ([]domain.Document, error)
	Exists(collection string) bool
}

// RankingSource reads the persisted ranking table. Returns os.ErrNotExist
// when the collection has never been ranked.
type RankingSource interface {
	LoadRanking(collection string) ([]domain.RankingEntry, error)
}

// IndexStore persists vector index snapshots. Load returns os.ErrNotExist
// when no index exists for the collection.
type IndexStore interface {
	SaveIndex(collection string, snap vecindex.Snapshot) error
	LoadIndex(collection string) (vecindex.Snapshot, error)
}

// KeywordExtractor extracts domain keywords from text.
type KeywordExtractor interface {
	Extract(text string) []string
}
