// Package docstore reads candidate documents from the local filesystem.
// A collection's documents live under <root>/<collection>/docs/*.txt; the
// directory is written by the (external) extraction stage and is read-only
// to this service.
package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
)

// Repo lists documents per collection.
type Repo struct {
	root   string
	logger *zap.Logger
}

// New creates a document repository rooted at the given data directory.
func New(root string, logger *zap.Logger) *Repo {
	return &Repo{root: root, logger: logger}
}

func (r *Repo) docsDir(collection string) string {
	return filepath.Join(r.root, collection, "docs")
}

// Exists reports whether the collection directory is present.
func (r *Repo) Exists(collection string) bool {
	info, err := os.Stat(filepath.Join(r.root, collection))
	return err == nil && info.IsDir()
}

// List returns the collection's documents ordered by filename. Returns
// domain.ErrCollectionNotFound when the collection directory is missing.
// Unreadable files are skipped with a warning rather than failing the
// whole listing.
func (r *Repo) List(ctx context.Context, collection string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.Exists(collection) {
		return nil, fmt.Errorf("collection %q: %w", collection, domain.ErrCollectionNotFound)
	}

	dir := r.docsDir(collection)
	names, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read docs dir %s: %w", dir, err)
	}

	var docs []domain.Document
	for _, e := range names {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name())) // #nosec G304 -- path rooted at the configured data dir
		if err != nil {
			r.logger.Warn("Failed to read document", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		docs = append(docs, domain.Document{ID: e.Name(), Text: string(data)})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// HealthCheck verifies the data root is accessible.
func (r *Repo) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(r.root); err != nil {
		return fmt.Errorf("data root %s: %w", r.root, err)
	}
	return nil
}
