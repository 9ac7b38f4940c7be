package retrieval

import (
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/store"
)

func TestMerger_UnionsDistinctCandidates(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	vector := []Candidate{
		{ID: "a", Sources: []Source{SourceVector}, RawScore: 0.9},
		{ID: "b", Sources: []Source{SourceVector}, RawScore: 0.1},
	}
	lexical := []Candidate{
		{ID: "c", Sources: []Source{SourceLexical}, RawScore: 5.0},
	}

	merged := m.Merge(vector, lexical)
	if len(merged) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(merged))
	}
}

func TestMerger_DeduplicatesByID(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	vector := []Candidate{
		{ID: "shared", Sources: []Source{SourceVector}, RawScore: 0.9},
		{ID: "v-only", Sources: []Source{SourceVector}, RawScore: 0.3},
	}
	lexical := []Candidate{
		{ID: "shared", Sources: []Source{SourceLexical}, RawScore: 2.0},
		{ID: "l-only", Sources: []Source{SourceLexical}, RawScore: 8.0},
	}

	merged := m.Merge(vector, lexical)
	if len(merged) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(merged))
	}

	var shared *Candidate
	for i := range merged {
		if merged[i].ID == "shared" {
			shared = &merged[i]
		}
	}
	if shared == nil {
		t.Fatal("shared candidate missing")
	}
	if !shared.HasSource(SourceVector) || !shared.HasSource(SourceLexical) {
		t.Fatalf("source tags not merged: %v", shared.Sources)
	}
	// Vector batch: shared normalizes to 1 (best). Lexical batch: shared
	// normalizes to 0 (worst). The best normalized score wins.
	if shared.Score != 1 {
		t.Fatalf("expected best normalized score 1, got %v", shared.Score)
	}
}

func TestMerger_PerSignalNormalization(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	// Raw lexical scores are on a completely different scale than cosine
	// similarities; after per-signal min-max both batches span [0,1].
	vector := []Candidate{
		{ID: "v1", RawScore: 0.99},
		{ID: "v2", RawScore: 0.90},
	}
	lexical := []Candidate{
		{ID: "l1", RawScore: 40.0},
		{ID: "l2", RawScore: 10.0},
	}

	merged := m.Merge(vector, lexical)
	scores := make(map[string]float64, len(merged))
	for _, c := range merged {
		scores[c.ID] = c.Score
	}
	if scores["v1"] != 1 || scores["l1"] != 1 {
		t.Fatalf("batch winners not normalized to 1: %v", scores)
	}
	if scores["v2"] != 0 || scores["l2"] != 0 {
		t.Fatalf("batch losers not normalized to 0: %v", scores)
	}
}

func TestMerger_DeterministicOrdering(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	batch := []Candidate{
		{ID: "b", RawScore: 1.0},
		{ID: "a", RawScore: 1.0},
		{ID: "c", RawScore: 1.0},
	}

	merged := m.Merge(batch)
	// All-equal batch normalizes every score to 1; ties break by ID.
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if merged[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, merged[i].ID, id)
		}
	}
}

func TestMerger_ToleratesEmptySignals(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	merged := m.Merge(nil, nil, nil)
	if len(merged) != 0 {
		t.Fatalf("expected empty merge, got %d", len(merged))
	}

	merged = m.Merge(nil, []Candidate{{ID: "only", RawScore: 1}}, nil)
	if len(merged) != 1 || merged[0].ID != "only" {
		t.Fatalf("single-signal merge broken: %+v", merged)
	}
}

func TestMerger_KeepsRelationsFromGraphSignal(t *testing.T) {
	t.Parallel()

	m := NewMerger(nil, zap.NewNop())
	vector := []Candidate{{ID: "e1", Sources: []Source{SourceVector}, RawScore: 0.9}}
	graph := []Candidate{{
		ID:       "e1",
		Sources:  []Source{SourceGraph},
		RawScore: 0.5,
		Relations: []store.Relation{
			{SubjectID: "e1", Predicate: "works_at", ObjectID: "e2"},
		},
	}}

	merged := m.Merge(vector, graph)
	if len(merged) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(merged))
	}
	if len(merged[0].Relations) != 1 {
		t.Fatalf("relations lost in merge: %+v", merged[0])
	}
}
