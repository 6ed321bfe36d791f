// Package artifacts persists per-collection ranking tables and vector
// index snapshots as gob files under <root>/<collection>/artifacts/.
// Writes go through a temp file and rename so readers never observe a
// partially written artifact.
package artifacts

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/vecindex"
)

const (
	rankingFile = "ranking.gob"
	indexFile   = "index.gob"
)

// Store reads and writes collection artifacts.
type Store struct {
	root   string
	logger *zap.Logger
}

// New creates an artifact store rooted at the given data directory.
func New(root string, logger *zap.Logger) *Store {
	return &Store{root: root, logger: logger}
}

func (s *Store) path(collection, file string) string {
	return filepath.Join(s.root, collection, "artifacts", file)
}

// SaveRanking atomically replaces the collection's ranking table.
func (s *Store) SaveRanking(collection string, entries []domain.RankingEntry) error {
	if err := s.save(s.path(collection, rankingFile), entries); err != nil {
		return fmt.Errorf("save ranking for %q: %w", collection, err)
	}
	s.logger.Info("Ranking table persisted",
		zap.String("collection", collection),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// LoadRanking returns the persisted ranking table, or os.ErrNotExist when
// the collection has never been ranked.
func (s *Store) LoadRanking(collection string) ([]domain.RankingEntry, error) {
	var entries []domain.RankingEntry
	if err := s.load(s.path(collection, rankingFile), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveIndex atomically replaces the collection's serialized vector index.
func (s *Store) SaveIndex(collection string, snap vecindex.Snapshot) error {
	if err := s.save(s.path(collection, indexFile), snap); err != nil {
		return fmt.Errorf("save index for %q: %w", collection, err)
	}
	s.logger.Info("Vector index persisted",
		zap.String("collection", collection),
		zap.Int("vectors", len(snap.IDs)),
		zap.Int("dimension", snap.Dim),
	)
	return nil
}

// LoadIndex returns the persisted index snapshot, or os.ErrNotExist when
// no index has been built for the collection.
func (s *Store) LoadIndex(collection string) (vecindex.Snapshot, error) {
	var snap vecindex.Snapshot
	if err := s.load(s.path(collection, indexFile), &snap); err != nil {
		return vecindex.Snapshot{}, err
	}
	return snap, nil
}

// HasIndex reports whether a serialized index exists on disk.
func (s *Store) HasIndex(collection string) bool {
	_, err := os.Stat(s.path(collection, indexFile))
	return err == nil
}

func (s *Store) save(path string, object any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(object); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("gob encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (s *Store) load(path string, objectPtr any) error {
	f, err := os.Open(path) // #nosec G304 -- path rooted at the configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.logger.Warn("Failed to close artifact file", zap.String("path", path), zap.Error(closeErr))
		}
	}()

	if err := gob.NewDecoder(f).Decode(objectPtr); err != nil {
		return fmt.Errorf("gob decode %s: %w", path, err)
	}
	return nil
}
