package ranking

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/talentdex/talentdex/internal/domain"
	"github.com/talentdex/talentdex/internal/keywords"
)

// --- Mocks ---

type mockDocSource struct {
	docs map[string][]domain.Document
	err  error
}

func (m *mockDocSource) List(_ context.Context, collection string) ([]domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.docs[collection], nil
}

type mockStore struct {
	saved   map[string][]domain.RankingEntry
	saveErr error
}

func newMockStore() *mockStore {
	return &mockStore{saved: make(map[string][]domain.RankingEntry)}
}

func (m *mockStore) SaveRanking(collection string, entries []domain.RankingEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[collection] = entries
	return nil
}

func (m *mockStore) LoadRanking(collection string) ([]domain.RankingEntry, error) {
	entries, ok := m.saved[collection]
	if !ok {
		return nil, errors.New("not ranked")
	}
	return entries, nil
}

func newService(docs map[string][]domain.Document, store Store) *Service {
	return New(
		&mockDocSource{docs: docs},
		store,
		keywords.NewExtractor(nil),
		Weights{},
		zap.NewNop(),
	)
}

// --- Tests ---

func TestRank_EmptyCollection(t *testing.T) {
	svc := newService(map[string][]domain.Document{}, newMockStore())

	_, err := svc.Rank(context.Background(), "empty", "Python developer")
	if !errors.Is(err, domain.ErrEmptyCollection) {
		t.Fatalf("expected ErrEmptyCollection, got %v", err)
	}
}

func TestRank_EmptyJobDescription(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {{ID: "a", Text: "python engineer"}},
	}
	svc := newService(docs, newMockStore())

	// Whitespace and pure stopwords both tokenize to nothing.
	for _, jd := range []string{"   ", "the and of"} {
		_, err := svc.Rank(context.Background(), "c", jd)
		if !errors.Is(err, domain.ErrEmptyQuery) {
			t.Fatalf("jd %q: expected ErrEmptyQuery, got %v", jd, err)
		}
	}
}

func TestRank_OrderAndDenseRanks(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {
			{ID: "weak", Text: "gardening and cooking enthusiast"},
			{ID: "strong", Text: "senior python developer with django and aws experience"},
			{ID: "partial", Text: "python scripting for data pipelines"},
		},
	}
	store := newMockStore()
	svc := newService(docs, store)

	entries, err := svc.Rank(context.Background(), "c", "Python developer with Django and AWS")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].DocumentID != "strong" {
		t.Errorf("rank 1 = %s, want strong", entries[0].DocumentID)
	}
	if entries[2].DocumentID != "weak" {
		t.Errorf("rank 3 = %s, want weak", entries[2].DocumentID)
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Errorf("entry %d has rank %d, want %d", i, e.Rank, i+1)
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CombinedScore > entries[i-1].CombinedScore {
			t.Errorf("combined scores not descending: %v", entries)
		}
	}
}

func TestRank_ScoresInRange(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {
			{ID: "a", Text: "python python python django"},
			{ID: "b", Text: "unrelated text entirely"},
		},
	}
	svc := newService(docs, newMockStore())

	entries, err := svc.Rank(context.Background(), "c", "python django backend")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	for _, e := range entries {
		for name, score := range map[string]float64{
			"lexical":  e.LexicalScore,
			"keyword":  e.KeywordScore,
			"combined": e.CombinedScore,
		} {
			if score < 0 || score > 1 {
				t.Errorf("%s: %s score %f outside [0,1]", e.DocumentID, name, score)
			}
		}
	}
}

func TestRank_CombinedScoreFormula(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {
			{ID: "a", Text: "python django aws docker engineer"},
			{ID: "b", Text: "accountant with excel reports"},
		},
	}
	svc := newService(docs, newMockStore())

	entries, err := svc.Rank(context.Background(), "c", "python django aws engineer")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	for _, e := range entries {
		want := 0.7*e.LexicalScore + 0.3*e.KeywordScore
		if want > 1 {
			want = 1
		}
		if math.Abs(e.CombinedScore-want) > 1e-9 {
			t.Errorf("%s: combined = %f, want %f", e.DocumentID, e.CombinedScore, want)
		}
	}
}

func TestRank_MatchedAndMissingKeywords(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {
			{ID: "a", Text: "python and aws services"},
		},
	}
	svc := newService(docs, newMockStore())

	entries, err := svc.Rank(context.Background(), "c", "python django aws")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	e := entries[0]
	if !reflect.DeepEqual(e.MatchedKeywords, []string{"aws", "python"}) {
		t.Errorf("matched = %v, want [aws python]", e.MatchedKeywords)
	}
	if !reflect.DeepEqual(e.MissingKeywords, []string{"django"}) {
		t.Errorf("missing = %v, want [django]", e.MissingKeywords)
	}
}

func TestRank_Deterministic(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {
			{ID: "a", Text: "python backend developer"},
			{ID: "b", Text: "java backend developer"},
			{ID: "d", Text: "frontend react developer"},
		},
	}
	svc := newService(docs, newMockStore())

	first, err := svc.Rank(context.Background(), "c", "backend python engineer")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	second, err := svc.Rank(context.Background(), "c", "backend python engineer")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated ranking differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRank_TieBreakByDocumentID(t *testing.T) {
	// Identical texts produce identical scores; order falls back to id.
	docs := map[string][]domain.Document{
		"c": {
			{ID: "zeta", Text: "python developer"},
			{ID: "alpha", Text: "python developer"},
		},
	}
	svc := newService(docs, newMockStore())

	entries, err := svc.Rank(context.Background(), "c", "python developer")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	if entries[0].DocumentID != "alpha" || entries[1].DocumentID != "zeta" {
		t.Errorf("tie order = [%s %s], want [alpha zeta]", entries[0].DocumentID, entries[1].DocumentID)
	}
	if entries[0].CombinedScore != entries[1].CombinedScore {
		t.Errorf("expected equal scores for identical texts")
	}
}

func TestRank_PersistsTable(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {{ID: "a", Text: "python developer"}},
	}
	store := newMockStore()
	svc := newService(docs, store)

	entries, err := svc.Rank(context.Background(), "c", "python")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	if !reflect.DeepEqual(store.saved["c"], entries) {
		t.Error("persisted table differs from returned entries")
	}

	loaded, err := svc.Table(context.Background(), "c")
	if err != nil {
		t.Fatalf("Table failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, entries) {
		t.Error("Table returned different entries")
	}
}

func TestRank_SaveFailure(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {{ID: "a", Text: "python developer"}},
	}
	store := newMockStore()
	store.saveErr = errors.New("disk full")
	svc := newService(docs, store)

	_, err := svc.Rank(context.Background(), "c", "python")
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
}

func TestRank_CustomWeights(t *testing.T) {
	docs := map[string][]domain.Document{
		"c": {{ID: "a", Text: "python aws"}},
	}
	svc := New(
		&mockDocSource{docs: docs},
		newMockStore(),
		keywords.NewExtractor(nil),
		Weights{Lexical: 0.5, Keyword: 0.5},
		zap.NewNop(),
	)

	entries, err := svc.Rank(context.Background(), "c", "python aws")
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	e := entries[0]
	want := 0.5*e.LexicalScore + 0.5*e.KeywordScore
	if math.Abs(e.CombinedScore-want) > 1e-9 {
		t.Errorf("combined = %f, want %f", e.CombinedScore, want)
	}
}

func TestTokenize_StopwordsAndCase(t *testing.T) {
	got := tokenize("The Quick and the Dead")
	want := []string{"quick", "dead"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenize = %v, want %v", got, want)
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	v := fit([]string{"python backend developer", "python backend developer"})
	if v == nil {
		t.Fatal("fit returned nil")
	}
	vec := v.transform("python backend developer")
	if math.Abs(cosine(vec, vec)-1.0) > 1e-9 {
		t.Errorf("cosine(v, v) = %f, want 1.0", cosine(vec, vec))
	}
}

func TestTransform_UnknownTokensOnly(t *testing.T) {
	v := fit([]string{"python developer"})
	vec := v.transform("unrelated words entirely")
	for i, f := range vec {
		if f != 0 {
			t.Errorf("vec[%d] = %f, want 0", i, f)
		}
	}
}
