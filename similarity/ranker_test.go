package similarity

import (
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestSequentialRanker_RanksByCosine(t *testing.T) {
	t.Parallel()

	r := NewSequentialRanker()
	query := []float64{1, 0}
	vectors := [][]float64{
		{0, 1},
		{1, 0},
		{0.9, 0.1},
	}

	hits := r.Rank(query, vectors, 3)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Index != 1 {
		t.Fatalf("expected top index 1, got %d", hits[0].Index)
	}
	if hits[1].Index != 2 {
		t.Fatalf("expected second index 2, got %d", hits[1].Index)
	}
	if hits[2].Index != 0 {
		t.Fatalf("expected third index 0, got %d", hits[2].Index)
	}
}

func TestRanker_TiesBrokenByAscendingIndex(t *testing.T) {
	t.Parallel()

	query := []float64{1, 0}
	// Identical vectors produce identical scores.
	vectors := [][]float64{
		{0.5, 0.5},
		{0.5, 0.5},
		{0.5, 0.5},
	}

	for _, r := range []Ranker{NewSequentialRanker(), NewParallelRanker(1, 2)} {
		hits := r.Rank(query, vectors, 3)
		for i, h := range hits {
			if h.Index != i {
				t.Fatalf("%s: tie at rank %d resolved to index %d, want %d", r.Name(), i, h.Index, i)
			}
		}
	}
}

func TestRanker_TopKSmallerThanInput(t *testing.T) {
	t.Parallel()

	r := NewSequentialRanker()
	query := []float64{1, 0, 0}
	vectors := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0.8, 0.2, 0},
		{0, 0, 1},
	}

	hits := r.Rank(query, vectors, 2)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Index != 0 || hits[1].Index != 2 {
		t.Fatalf("unexpected top-2: %+v", hits)
	}
}

// TestRanker_ParallelMatchesSequential verifies the fallback equivalence
// guarantee: both strategies produce identical rankings within tolerance.
func TestRanker_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	const n = 500
	query := make([]float64, 8)
	vectors := make([][]float64, n)
	for i := range vectors {
		vectors[i] = make([]float64, 8)
		for j := range vectors[i] {
			// Deterministic pseudo-random values.
			vectors[i][j] = math.Sin(float64(i*8+j) * 0.7)
		}
	}
	for j := range query {
		query[j] = math.Cos(float64(j) * 1.3)
	}

	seq := NewSequentialRanker().Rank(query, vectors, n)
	par := NewParallelRanker(16, 4).Rank(query, vectors, n)

	if len(seq) != len(par) {
		t.Fatalf("length mismatch: %d vs %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Index != par[i].Index {
			t.Fatalf("rank %d: index %d vs %d", i, seq[i].Index, par[i].Index)
		}
		if math.Abs(seq[i].Score-par[i].Score) > 1e-6 {
			t.Fatalf("rank %d: score %v vs %v", i, seq[i].Score, par[i].Score)
		}
	}
}

// TestRanker_BelowThresholdBitIdentical verifies that for inputs below the
// parallel threshold both code paths yield bit-identical ordering and scores.
func TestRanker_BelowThresholdBitIdentical(t *testing.T) {
	t.Parallel()

	query := []float64{0.3, -0.2, 0.9}
	vectors := [][]float64{
		{0.1, 0.4, 0.5},
		{-0.7, 0.2, 0.1},
		{0.3, -0.2, 0.9},
		{0.0, 0.0, 1.0},
	}

	seq := NewSequentialRanker().Rank(query, vectors, 4)
	// Threshold 256 forces the parallel ranker onto its sequential path.
	par := NewParallelRanker(256, 4).Rank(query, vectors, 4)

	for i := range seq {
		if seq[i] != par[i] {
			t.Fatalf("rank %d: %+v vs %+v", i, seq[i], par[i])
		}
	}
}

func TestNewRanker_SelectsStrategy(t *testing.T) {
	t.Parallel()

	r := NewRanker(DefaultConfig(), zap.NewNop())
	if r == nil {
		t.Fatal("expected a ranker")
	}
	if name := r.Name(); name != "sequential" && name != "parallel" {
		t.Fatalf("unexpected strategy name %q", name)
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %v", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %v", got)
	}
	if got := Cosine([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Fatalf("zero vector: got %v", got)
	}
	if got := Cosine([]float64{1, 0}, []float64{1}); got != 0 {
		t.Fatalf("dimension mismatch: got %v", got)
	}
}

func TestRanker_EmptyInputs(t *testing.T) {
	t.Parallel()

	r := NewSequentialRanker()
	if hits := r.Rank([]float64{1, 0}, nil, 5); len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
	if hits := r.Rank([]float64{1, 0}, [][]float64{{1, 0}}, 0); len(hits) != 0 {
		t.Fatalf("expected no hits for k=0, got %d", len(hits))
	}
}
