package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// scriptedScorer serves scores from a map and optionally fails whole batches.
type scriptedScorer struct {
	scores    map[string]float64
	failtexts map[string]bool
	batches   int
}

func (s *scriptedScorer) Name() string { return "scripted" }

func (s *scriptedScorer) Score(_ context.Context, pairs []QueryDocPair) ([]float64, error) {
	s.batches++
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		if s.shouldFail(p.Document) {
			return nil, errors.New("scorer unavailable for batch")
		}
		out[i] = s.scores[p.Document]
	}
	return out, nil
}

func (s *scriptedScorer) shouldFail(doc string) bool {
	return s.failtexts != nil && s.failtexts[doc]
}

func TestReranker_OrdersByModelScore(t *testing.T) {
	t.Parallel()

	scorer := &scriptedScorer{scores: map[string]float64{
		"low": 0.1, "high": 0.9, "mid": 0.5,
	}}
	r := NewReranker(DefaultRerankerConfig(), scorer, zap.NewNop(), nil)

	candidates := []Candidate{
		{ID: "1", Text: "low", Score: 0.9},
		{ID: "2", Text: "high", Score: 0.1},
		{ID: "3", Text: "mid", Score: 0.5},
	}
	out := r.Rerank(context.Background(), "q", candidates, 3)

	want := []string{"high", "mid", "low"}
	for i, text := range want {
		if out[i].Text != text {
			t.Fatalf("position %d: got %s, want %s", i, out[i].Text, text)
		}
		if !out[i].Reranked {
			t.Fatalf("position %d not marked reranked", i)
		}
	}
}

func TestReranker_TiesBreakByPreRerankScore(t *testing.T) {
	t.Parallel()

	scorer := &scriptedScorer{scores: map[string]float64{"a": 0.5, "b": 0.5}}
	r := NewReranker(DefaultRerankerConfig(), scorer, zap.NewNop(), nil)

	candidates := []Candidate{
		{ID: "1", Text: "a", Score: 0.2},
		{ID: "2", Text: "b", Score: 0.8},
	}
	out := r.Rerank(context.Background(), "q", candidates, 2)
	if out[0].Text != "b" {
		t.Fatalf("tie not broken by pre-rerank score: %+v", out)
	}
}

func TestReranker_Batches(t *testing.T) {
	t.Parallel()

	scorer := &scriptedScorer{scores: map[string]float64{}}
	cfg := DefaultRerankerConfig()
	cfg.BatchSize = 2
	r := NewReranker(cfg, scorer, zap.NewNop(), nil)

	candidates := make([]Candidate, 5)
	for i := range candidates {
		candidates[i] = Candidate{ID: string(rune('a' + i)), Text: string(rune('a' + i))}
	}
	r.Rerank(context.Background(), "q", candidates, 5)

	if scorer.batches != 3 {
		t.Fatalf("expected 3 batches for 5 candidates at size 2, got %d", scorer.batches)
	}
}

// TestReranker_FailedBatchKeepsPreRerankOrder verifies partial failure
// semantics: candidates from a failed batch keep their pre-rerank relative
// order and follow all successfully scored candidates.
func TestReranker_FailedBatchKeepsPreRerankOrder(t *testing.T) {
	t.Parallel()

	scorer := &scriptedScorer{
		scores:    map[string]float64{"ok1": 0.2, "ok2": 0.8},
		failtexts: map[string]bool{"bad1": true},
	}
	cfg := DefaultRerankerConfig()
	cfg.BatchSize = 2
	r := NewReranker(cfg, scorer, zap.NewNop(), nil)

	// Batch 1: bad1, bad2 (fails). Batch 2: ok1, ok2 (succeeds).
	candidates := []Candidate{
		{ID: "1", Text: "bad1"},
		{ID: "2", Text: "bad2"},
		{ID: "3", Text: "ok1"},
		{ID: "4", Text: "ok2"},
	}
	out := r.Rerank(context.Background(), "q", candidates, 4)

	want := []string{"ok2", "ok1", "bad1", "bad2"}
	for i, text := range want {
		if out[i].Text != text {
			t.Fatalf("position %d: got %s, want %v", i, out[i].Text, want)
		}
	}
	if out[2].Reranked || out[3].Reranked {
		t.Fatal("failed-batch candidates must not be marked reranked")
	}
}

func TestReranker_NilProviderPassesThrough(t *testing.T) {
	t.Parallel()

	r := NewReranker(DefaultRerankerConfig(), nil, zap.NewNop(), nil)
	candidates := []Candidate{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	out := r.Rerank(context.Background(), "q", candidates, 2)
	if len(out) != 2 || out[0].ID != "1" || out[1].ID != "2" {
		t.Fatalf("pass-through broken: %+v", out)
	}
}

func TestReranker_TopKTruncates(t *testing.T) {
	t.Parallel()

	scorer := &scriptedScorer{scores: map[string]float64{"a": 0.9, "b": 0.5, "c": 0.1}}
	r := NewReranker(DefaultRerankerConfig(), scorer, zap.NewNop(), nil)

	candidates := []Candidate{
		{ID: "1", Text: "c"},
		{ID: "2", Text: "a"},
		{ID: "3", Text: "b"},
	}
	out := r.Rerank(context.Background(), "q", candidates, 1)
	if len(out) != 1 || out[0].Text != "a" {
		t.Fatalf("topK truncation broken: %+v", out)
	}
}

// hangingScorer never answers until its context is cancelled.
type hangingScorer struct{}

func (hangingScorer) Name() string { return "hanging" }

func (hangingScorer) Score(ctx context.Context, _ []QueryDocPair) ([]float64, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// TestReranker_HungScorerTimesOut verifies that a scorer which never
// returns cannot block retrieval: each batch is bounded by the configured
// timeout and takes the failed-batch degradation path.
func TestReranker_HungScorerTimesOut(t *testing.T) {
	t.Parallel()

	cfg := DefaultRerankerConfig()
	cfg.Timeout = 50 * time.Millisecond
	r := NewReranker(cfg, hangingScorer{}, zap.NewNop(), nil)

	candidates := []Candidate{
		{ID: "1", Text: "a"},
		{ID: "2", Text: "b"},
		{ID: "3", Text: "c"},
	}
	start := time.Now()
	out := r.Rerank(context.Background(), "q", candidates, 3)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rerank blocked on hung scorer for %v", elapsed)
	}

	for i, c := range out {
		if c.ID != candidates[i].ID {
			t.Fatalf("pre-rerank order lost after timeout: %+v", out)
		}
		if c.Reranked {
			t.Fatalf("timed-out candidate marked reranked: %+v", c)
		}
	}
}

func TestSimpleScoreProvider_PrefersTermOverlap(t *testing.T) {
	t.Parallel()

	p := SimpleScoreProvider{}
	scores, err := p.Score(context.Background(), []QueryDocPair{
		{Query: "vector retrieval engine", Document: "a hybrid vector retrieval engine for context assembly"},
		{Query: "vector retrieval engine", Document: "cooking recipes for pasta"},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[0] <= scores[1] {
		t.Fatalf("overlapping document should score higher: %v", scores)
	}
}
