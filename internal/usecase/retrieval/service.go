// Package retrieval implements the two-stage retrieval engine: broad
// vector search over a lazily built per-collection index, score fusion
// with the persisted ranking table and keyword overlap, filtering, and a
// TTL query cache.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/talentdex/talentdex/internal/cache"
	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/keywords"
	"github.com/talentdex/talentdex/internal/metrics"
	"github.com/talentdex/talentdex/internal/vecindex"
)

const (
	// DefaultTopK is the result size when the caller does not specify one.
	DefaultTopK = 5
	// DefaultBroadK is the fixed first-stage search width, independent of
	// the requested top_k, bounding fusion cost.
	DefaultBroadK = 50
	// DefaultCacheTTL is the query cache expiry window.
	DefaultCacheTTL = time.Hour
)

// Status describes a collection's retrieval readiness.
type Status struct {
	IndexBuilt       bool `json:"index_built"`
	IndexSize        int  `json:"index_size"`
	RankingAvailable bool `json:"ranking_available"`
}

// Service is the retrieval fusion engine. Safe for concurrent use; a
// rebuild replaces the collection's index pointer under lock so readers
// see either the old or the new index, never a partial one.
type Service struct {
	docs    DocumentSource
	embed   domain.Embedder
	ranking RankingSource
	store   IndexStore
	kw      KeywordExtractor
	weights FusionWeights
	broadK  int
	logger  *zap.Logger

	queries *cache.Cache[[]domain.Candidate]

	mu      sync.RWMutex
	indexes map[string]*vecindex.Index
	builds  singleflight.Group
}

// New creates a retrieval service with the default broad stage width and
// cache TTL.
func New(
	docs DocumentSource,
	embed domain.Embedder,
	ranking RankingSource,
	store IndexStore,
	kw KeywordExtractor,
	weights FusionWeights,
	logger *zap.Logger,
) *Service {
	return &Service{
		docs:    docs,
		embed:   embed,
		ranking: ranking,
		store:   store,
		kw:      kw,
		weights: weights.orDefaults(),
		broadK:  DefaultBroadK,
		logger:  logger,
		queries: cache.New[[]domain.Candidate](DefaultCacheTTL),
		indexes: make(map[string]*vecindex.Index),
	}
}

// WithCacheTTL replaces the query cache with one using the given TTL.
func (s *Service) WithCacheTTL(ttl time.Duration) *Service {
	s.queries = cache.New[[]domain.Candidate](ttl)
	return s
}

// WithBroadK overrides the first-stage search width.
func (s *Service) WithBroadK(k int) *Service {
	if k > 0 {
		s.broadK = k
	}
	return s
}

// Cache exposes the query cache. Test hook for clock injection.
func (s *Service) Cache() *cache.Cache[[]domain.Candidate] { return s.queries }

// Retrieve returns the topK most relevant candidates for question.
// Validation errors are returned before any backend work starts; a cache
// hit returns the stored result without re-invoking the embedder.
func (s *Service) Retrieve(
	ctx context.Context, collection, question string, topK int, filter *domain.Filter,
) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k %d: %w", topK, domain.ErrInvalidTopK)
	}
	normalized := keywords.Normalize(question)
	if normalized == "" {
		return nil, fmt.Errorf("question: %w", domain.ErrEmptyQuery)
	}

	key := queryKey(collection, normalized, topK, filter)
	if cached, ok := s.queries.Get(key); ok {
		metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.QueryCacheTotal.WithLabelValues("miss").Inc()

	idx, err := s.indexFor(ctx, collection)
	if err != nil {
		return nil, err
	}

	embResult, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("vectorize question: %w", err)
	}

	hits, err := idx.Search(embResult.Embedding, s.broadK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	rankTable := s.rankingTable(collection)

	docs, err := s.docs.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	texts := make(map[string]string, len(docs))
	for _, d := range docs {
		texts[d.ID] = d.Text
	}

	candidates := s.fuse(hits, s.kw.Extract(question), rankTable, texts)
	candidates = applyFilter(candidates, filter)
	candidates = rankCandidates(candidates, topK)

	s.queries.Put(key, candidates)
	return candidates, nil
}

// QueryKey returns the cache key Retrieve would use for these arguments.
// The generation layer keys its answer cache on the same value.
func (s *Service) QueryKey(collection, question string, topK int, filter *domain.Filter) string {
	return queryKey(collection, keywords.Normalize(question), topK, filter)
}

// Status reports whether the collection's index is built (in memory or
// persisted) and whether a ranking table exists.
func (s *Service) Status(_ context.Context, collection string) (Status, error) {
	if !s.docs.Exists(collection) {
		return Status{}, fmt.Errorf("collection %q: %w", collection, domain.ErrCollectionNotFound)
	}

	var st Status
	s.mu.RLock()
	idx := s.indexes[collection]
	s.mu.RUnlock()

	if idx != nil {
		st.IndexBuilt = true
		st.IndexSize = idx.Len()
	} else if snap, err := s.store.LoadIndex(collection); err == nil {
		st.IndexBuilt = true
		st.IndexSize = len(snap.IDs)
	}

	if _, err := s.ranking.LoadRanking(collection); err == nil {
		st.RankingAvailable = true
	}
	return st, nil
}

// Rebuild re-encodes the collection's documents and atomically replaces
// the index, ignoring any persisted snapshot. Synchronous: returns once
// the new index is live and persisted.
func (s *Service) Rebuild(ctx context.Context, collection string) (Status, error) {
	// Drop any in-flight lazy build result so the rebuild is fresh.
	s.builds.Forget(collection)
	v, err, _ := s.builds.Do(collection, func() (any, error) {
		return s.buildFromDocuments(ctx, collection)
	})
	if err != nil {
		return Status{}, err
	}
	idx := v.(*vecindex.Index)
	return Status{IndexBuilt: true, IndexSize: idx.Len()}, nil
}

// RankingAvailable reports whether a ranking table exists for collection.
func (s *Service) RankingAvailable(collection string) bool {
	_, err := s.ranking.LoadRanking(collection)
	return err == nil
}

// indexFor returns the collection's index, loading the persisted snapshot
// or building from documents on first use. Concurrent callers collapse
// into a single build.
func (s *Service) indexFor(ctx context.Context, collection string) (*vecindex.Index, error) {
	s.mu.RLock()
	idx := s.indexes[collection]
	s.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	v, err, _ := s.builds.Do(collection, func() (any, error) {
		// Re-check: another caller may have installed it before we
		// entered the group.
		s.mu.RLock()
		existing := s.indexes[collection]
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		if snap, err := s.store.LoadIndex(collection); err == nil {
			loaded, ferr := vecindex.FromSnapshot(snap)
			if ferr == nil {
				s.install(collection, loaded)
				s.logger.Info("Vector index loaded from disk",
					zap.String("collection", collection),
					zap.Int("vectors", loaded.Len()),
				)
				return loaded, nil
			}
			s.logger.Warn("Discarding corrupt index snapshot",
				zap.String("collection", collection), zap.Error(ferr))
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load index snapshot: %w", err)
		}

		return s.buildFromDocuments(ctx, collection)
	})
	if err != nil {
		return nil, err
	}
	return v.(*vecindex.Index), nil
}

// buildFromDocuments encodes every document and installs + persists a new
// index. Embedding failures abort the build without touching the current
// index.
func (s *Service) buildFromDocuments(ctx context.Context, collection string) (*vecindex.Index, error) {
	start := time.Now()

	docs, err := s.docs.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("collection %q: %w", collection, domain.ErrIndexNotBuilt)
	}

	records := make([]vecindex.Record, len(docs))
	for i, doc := range docs {
		res, err := s.embed.Embed(ctx, doc.Text)
		if err != nil {
			return nil, fmt.Errorf("encode document %q: %w", doc.ID, err)
		}
		records[i] = vecindex.Record{DocumentID: doc.ID, Embedding: res.Embedding}
	}

	idx, err := vecindex.New(records)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	s.install(collection, idx)
	if err := s.store.SaveIndex(collection, idx.Snapshot()); err != nil {
		// The in-memory index is live; persistence failure only costs a
		// rebuild after restart.
		s.logger.Warn("Failed to persist vector index",
			zap.String("collection", collection), zap.Error(err))
	}

	metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("Vector index built",
		zap.String("collection", collection),
		zap.Int("vectors", idx.Len()),
		zap.Int("dimension", idx.Dim()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return idx, nil
}

func (s *Service) install(collection string, idx *vecindex.Index) {
	s.mu.Lock()
	s.indexes[collection] = idx
	s.mu.Unlock()
}

// rankingTable loads the collection's ranking entries keyed by document
// id; a missing table is not an error, fusion just runs unranked.
func (s *Service) rankingTable(collection string) map[string]domain.RankingEntry {
	entries, err := s.ranking.LoadRanking(collection)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to load ranking table",
				zap.String("collection", collection), zap.Error(err))
		}
		return nil
	}
	table := make(map[string]domain.RankingEntry, len(entries))
	for _, e := range entries {
		table[e.DocumentID] = e
	}
	return table
}
