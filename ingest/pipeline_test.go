package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/retrievalflow/store"
)

// batchProvider returns one deterministic vector per text and records
// how many batch calls it served.
type batchProvider struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (p *batchProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *batchProvider) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		sum := 0.0
		for _, r := range text {
			sum += float64(r)
		}
		out[i] = []float64{sum, float64(len(text))}
	}
	return out, nil
}

func (p *batchProvider) Name() string    { return "batch-test" }
func (p *batchProvider) Dimensions() int { return 2 }

func TestPipeline_EmbedChunksBackfillsMissing(t *testing.T) {
	t.Parallel()

	provider := &batchProvider{}
	pipe := NewPipeline(Config{BatchSize: 2, Workers: 2}, provider, nil)
	defer pipe.Close()

	chunks := []store.Chunk{
		{ID: "c1", Text: "alpha"},
		{ID: "c2", Text: "beta", Embedding: []float64{9, 9}},
		{ID: "c3", Text: "gamma"},
		{ID: "c4", Text: "delta"},
	}

	got, err := pipe.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}

	for _, c := range got {
		if len(c.Embedding) == 0 {
			t.Fatalf("chunk %s still has no embedding", c.ID)
		}
	}
	// Pre-existing embeddings are left alone.
	if got[1].Embedding[0] != 9 {
		t.Fatalf("chunk c2 embedding overwritten: %v", got[1].Embedding)
	}
	// 3 pending chunks at batch size 2 = 2 provider calls.
	if n := provider.calls.Load(); n != 2 {
		t.Fatalf("provider calls = %d, want 2", n)
	}
}

func TestPipeline_EmbedChunksFillsTerms(t *testing.T) {
	t.Parallel()

	pipe := NewPipeline(DefaultConfig(), &batchProvider{}, nil)
	defer pipe.Close()

	chunks := []store.Chunk{
		{ID: "c1", Text: "Goroutines Power Concurrency", Embedding: []float64{1}},
		{ID: "c2", Text: "keep", Embedding: []float64{1}, Terms: []string{"custom"}},
	}

	got, err := pipe.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}

	want := []string{"goroutines", "power", "concurrency"}
	if len(got[0].Terms) != len(want) {
		t.Fatalf("terms = %v, want %v", got[0].Terms, want)
	}
	for i, term := range want {
		if got[0].Terms[i] != term {
			t.Fatalf("terms = %v, want %v", got[0].Terms, want)
		}
	}
	// Existing terms are preserved.
	if len(got[1].Terms) != 1 || got[1].Terms[0] != "custom" {
		t.Fatalf("c2 terms = %v, want [custom]", got[1].Terms)
	}
}

func TestPipeline_EmbedChunksFailsWhole(t *testing.T) {
	t.Parallel()

	provider := &batchProvider{}
	provider.fail.Store(true)
	pipe := NewPipeline(Config{BatchSize: 2, Workers: 2}, provider, nil)
	defer pipe.Close()

	_, err := pipe.EmbedChunks(context.Background(), []store.Chunk{{ID: "c1", Text: "alpha"}})
	if err == nil {
		t.Fatal("expected error when provider fails")
	}
}

func TestPipeline_EmbedChunksNothingPending(t *testing.T) {
	t.Parallel()

	provider := &batchProvider{}
	pipe := NewPipeline(DefaultConfig(), provider, nil)
	defer pipe.Close()

	chunks := []store.Chunk{{ID: "c1", Text: "x", Embedding: []float64{1}, Terms: []string{"x"}}}
	if _, err := pipe.EmbedChunks(context.Background(), chunks); err != nil {
		t.Fatalf("EmbedChunks: %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Fatal("provider should not be called when nothing is pending")
	}
}

func TestPipeline_EmbedEntities(t *testing.T) {
	t.Parallel()

	pipe := NewPipeline(DefaultConfig(), &batchProvider{}, nil)
	defer pipe.Close()

	entities := []store.Entity{
		{ID: "e1", Label: "goroutine"},
		{ID: "e2", Label: "scheduler", Embedding: []float64{5}},
	}

	got, err := pipe.EmbedEntities(context.Background(), entities)
	if err != nil {
		t.Fatalf("EmbedEntities: %v", err)
	}
	if len(got[0].Embedding) == 0 {
		t.Fatal("e1 embedding not backfilled")
	}
	if got[1].Embedding[0] != 5 {
		t.Fatalf("e2 embedding overwritten: %v", got[1].Embedding)
	}
}
