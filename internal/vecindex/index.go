// Package vecindex implements an exact, memory-resident vector index:
// brute-force k-nearest-neighbor search by squared Euclidean distance over
// L2-normalized embeddings. An Index is immutable after construction;
// rebuilds replace the whole value.
package vecindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/talentdex/talentdex/internal/domain"
)

// Record pairs a document identifier with its embedding.
type Record struct {
	DocumentID string
	Embedding  []float32
}

// Hit is a single search result.
type Hit struct {
	DocumentID string
	Distance   float64
}

// Index holds normalized document vectors. Record order defines internal
// ordinals, used only for the reverse ordinal→id lookup.
type Index struct {
	dim     int
	ids     []string
	vectors [][]float32
}

// Snapshot is the gob-serializable form of an Index.
type Snapshot struct {
	Dim     int
	IDs     []string
	Vectors [][]float32
}

// New builds an index from records. Embeddings are copied and
// L2-normalized; all must share one dimensionality.
func New(records []Record) (*Index, error) {
	if len(records) == 0 {
		return nil, domain.ErrIndexNotBuilt
	}
	dim := len(records[0].Embedding)
	if dim == 0 {
		return nil, fmt.Errorf("record %q has an empty embedding", records[0].DocumentID)
	}

	idx := &Index{
		dim:     dim,
		ids:     make([]string, len(records)),
		vectors: make([][]float32, len(records)),
	}
	for i, r := range records {
		if len(r.Embedding) != dim {
			return nil, fmt.Errorf("record %q: dimension %d, want %d", r.DocumentID, len(r.Embedding), dim)
		}
		idx.ids[i] = r.DocumentID
		idx.vectors[i] = normalize(r.Embedding)
	}
	return idx, nil
}

// FromSnapshot restores an index from its serialized form.
func FromSnapshot(s Snapshot) (*Index, error) {
	if len(s.IDs) == 0 || len(s.IDs) != len(s.Vectors) {
		return nil, fmt.Errorf("corrupt index snapshot: %d ids, %d vectors", len(s.IDs), len(s.Vectors))
	}
	return &Index{dim: s.Dim, ids: s.IDs, vectors: s.Vectors}, nil
}

// Snapshot returns the serializable form of the index.
func (x *Index) Snapshot() Snapshot {
	return Snapshot{Dim: x.dim, IDs: x.ids, Vectors: x.vectors}
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.ids)
}

// Dim returns the vector dimensionality.
func (x *Index) Dim() int { return x.dim }

// Search returns the k nearest records to query by squared Euclidean
// distance, ties broken by ascending document id. Returns fewer than k
// hits when the index is smaller than k.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if x == nil || len(x.ids) == 0 {
		return nil, domain.ErrIndexNotBuilt
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), x.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	q := normalize(query)
	hits := make([]Hit, len(x.ids))
	for i, v := range x.vectors {
		hits[i] = Hit{DocumentID: x.ids[i], Distance: squaredDistance(q, v)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// normalize returns an L2-normalized copy of v. Zero vectors are returned
// as zero-filled copies rather than NaN.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// Similarity converts a squared Euclidean distance into a similarity in
// (0, 1]: 1/(1+distance). Monotonic decreasing; distance 0 maps to 1.
func Similarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}
