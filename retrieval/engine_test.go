package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/store"
)

// mapProvider returns fixed vectors for known (normalized) texts.
type mapProvider struct {
	vectors map[string][]float64
	down    bool
}

func (p *mapProvider) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	if p.down {
		return nil, errors.New("embedding service unavailable")
	}
	if vec, ok := p.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}

func (p *mapProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := p.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *mapProvider) Name() string    { return "map" }
func (p *mapProvider) Dimensions() int { return 3 }

func seedStore() *store.MemoryStore {
	s := store.NewMemoryStore(zap.NewNop())
	s.AddChunks(
		store.Chunk{
			ID: "c1", DocumentID: "doc-go", Ordinal: 0,
			Text:      "goroutines and channels power concurrency in go",
			Embedding: []float64{1, 0, 0},
		},
		store.Chunk{
			ID: "c2", DocumentID: "doc-go", Ordinal: 1,
			Text:      "the go scheduler multiplexes goroutines onto threads",
			Embedding: []float64{0.9, 0.1, 0},
		},
		store.Chunk{
			ID: "c3", DocumentID: "doc-py", Ordinal: 0,
			Text:      "python uses an interpreter and dynamic typing",
			Embedding: []float64{0, 1, 0},
		},
	)
	s.AddEntities(
		store.Entity{ID: "e1", Label: "goroutine", Type: store.EntityConcept, Embedding: []float64{1, 0, 0}, Confidence: 0.9},
		store.Entity{ID: "e2", Label: "scheduler", Type: store.EntityConcept, Embedding: []float64{0.8, 0.2, 0}, Confidence: 0.8},
	)
	s.AddRelations(
		store.Relation{SubjectID: "e1", Predicate: "scheduled_by", ObjectID: "e2", Confidence: 0.9, ChunkID: "c2"},
	)
	return s
}

func newTestEngine(t *testing.T, provider *mapProvider) *Engine {
	t.Helper()

	s := seedStore()
	eng, err := NewEngine(DefaultConfig(), Dependencies{
		Provider: provider,
		Chunks:   s,
		Entities: s,
		Scorer:   SimpleScoreProvider{},
		Counter:  runeTokenizer{},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return eng
}

func TestEngine_RetrieveHappyPath(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{vectors: map[string][]float64{
		"go concurrency": {1, 0, 0},
	}}
	eng := newTestEngine(t, provider)

	result, err := eng.Retrieve(context.Background(), "go concurrency", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Candidates) == 0 {
		t.Fatal("expected candidates")
	}
	if result.QueryID == "" {
		t.Fatal("missing query ID")
	}

	ids := map[string]bool{}
	for _, c := range result.Candidates {
		ids[c.ID] = true
	}
	if !ids["c1"] {
		t.Fatalf("best matching chunk missing: %+v", result.Candidates)
	}
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &mapProvider{})
	if _, err := eng.Retrieve(context.Background(), "   ", Options{}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestEngine_InvalidBudgetRejected(t *testing.T) {
	t.Parallel()

	eng := newTestEngine(t, &mapProvider{})
	if _, err := eng.Retrieve(context.Background(), "query", Options{TokenBudget: -5}); !errors.Is(err, ErrInvalidBudget) {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

// TestEngine_FailOpenWithoutVectors simulates a dead embedding service: the
// vector and graph vector tiers go empty, but lexical retrieval still
// produces a non-empty result and no error reaches the caller.
func TestEngine_FailOpenWithoutVectors(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{down: true}
	eng := newTestEngine(t, provider)

	result, err := eng.Retrieve(context.Background(), "goroutines concurrency", Options{})
	if err != nil {
		t.Fatalf("Retrieve must not fail when embeddings are down: %v", err)
	}
	if len(result.Candidates) == 0 {
		t.Fatal("lexical fallback produced no candidates")
	}
	for _, c := range result.Candidates {
		if c.Kind == KindChunk && !c.HasSource(SourceLexical) {
			t.Fatalf("chunk candidate without lexical source: %+v", c)
		}
		if c.HasSource(SourceVector) {
			t.Fatalf("vector source present despite dead provider: %+v", c)
		}
	}
}

// TestEngine_GraphFallsBackToLabels verifies the vector→lexical fallback
// chain inside the graph signal, including one-hop relation resolution.
func TestEngine_GraphFallsBackToLabels(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{down: true}
	eng := newTestEngine(t, provider)

	result, err := eng.Retrieve(context.Background(), "goroutine", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	var entity *Candidate
	for i := range result.Candidates {
		if result.Candidates[i].Kind == KindEntity {
			entity = &result.Candidates[i]
			break
		}
	}
	if entity == nil {
		t.Fatalf("no entity candidate from graph fallback: %+v", result.Candidates)
	}
	if !entity.HasSource(SourceGraph) {
		t.Fatalf("entity candidate missing graph source: %+v", entity)
	}
	if entity.ID == "e1" && len(entity.Relations) == 0 {
		t.Fatal("one-hop relations not resolved for e1")
	}
}

// TestEngine_Deterministic verifies that two sequential calls with identical
// inputs produce identical ordered output.
func TestEngine_Deterministic(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{vectors: map[string][]float64{
		"go concurrency": {1, 0, 0},
	}}
	eng := newTestEngine(t, provider)

	first, err := eng.Retrieve(context.Background(), "go concurrency", Options{})
	if err != nil {
		t.Fatalf("first Retrieve: %v", err)
	}
	second, err := eng.Retrieve(context.Background(), "go concurrency", Options{})
	if err != nil {
		t.Fatalf("second Retrieve: %v", err)
	}

	strip := func(r *Result) []Candidate {
		out := make([]Candidate, len(r.Candidates))
		copy(out, r.Candidates)
		return out
	}
	if !reflect.DeepEqual(strip(first), strip(second)) {
		t.Fatalf("non-deterministic output:\n%+v\nvs\n%+v", first.Candidates, second.Candidates)
	}
}

func TestEngine_BudgetRespected(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{vectors: map[string][]float64{
		"go concurrency": {1, 0, 0},
	}}
	eng := newTestEngine(t, provider)

	result, err := eng.Retrieve(context.Background(), "go concurrency", Options{TokenBudget: 60})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if result.TotalTokens > 60 {
		t.Fatalf("token budget exceeded: %d", result.TotalTokens)
	}
}

// explodingChunkStore panics on bulk reads, simulating a buggy store
// implementation behind the vector signal.
type explodingChunkStore struct {
	*store.MemoryStore
}

func (s *explodingChunkStore) ListChunks(context.Context) ([]store.Chunk, error) {
	panic("store exploded")
}

// TestEngine_SignalPanicIsIsolated verifies that a panic inside one signal's
// collaborator is absorbed: the signal contributes nothing, the sibling
// signals still run, and Retrieve returns normally.
func TestEngine_SignalPanicIsIsolated(t *testing.T) {
	t.Parallel()

	eng, err := NewEngine(DefaultConfig(), Dependencies{
		Provider: &mapProvider{},
		Chunks:   &explodingChunkStore{MemoryStore: seedStore()},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := eng.Retrieve(context.Background(), "goroutines", Options{})
	if err != nil {
		t.Fatalf("Retrieve must absorb a panicking signal: %v", err)
	}
	for _, c := range result.Candidates {
		if c.HasSource(SourceVector) {
			t.Fatalf("panicking signal still contributed: %+v", c)
		}
	}
}

// TestEngine_HNSWIndexMatchesFlat checks that on a small corpus the
// approximate index path returns the same candidates in the same order as
// the exact flat path.
func TestEngine_HNSWIndexMatchesFlat(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{vectors: map[string][]float64{
		"go concurrency": {1, 0, 0},
	}}

	build := func(index string) *Result {
		cfg := DefaultConfig()
		cfg.Index = index
		s := seedStore()
		eng, err := NewEngine(cfg, Dependencies{
			Provider: provider,
			Chunks:   s,
			Entities: s,
			Scorer:   SimpleScoreProvider{},
			Counter:  runeTokenizer{},
			Logger:   zap.NewNop(),
		})
		if err != nil {
			t.Fatalf("NewEngine(%s): %v", index, err)
		}
		if err := eng.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh(%s): %v", index, err)
		}
		result, err := eng.Retrieve(context.Background(), "go concurrency", Options{})
		if err != nil {
			t.Fatalf("Retrieve(%s): %v", index, err)
		}
		return result
	}

	flat := build("flat")
	hnsw := build("hnsw")

	ids := func(r *Result) []string {
		out := make([]string, len(r.Candidates))
		for i, c := range r.Candidates {
			out[i] = c.ID
		}
		return out
	}
	if !reflect.DeepEqual(ids(flat), ids(hnsw)) {
		t.Fatalf("index paths diverge on small corpus:\nflat: %v\nhnsw: %v", ids(flat), ids(hnsw))
	}
}

func TestNewEngine_RejectsUnknownIndex(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Index = "ivfpq"
	_, err := NewEngine(cfg, Dependencies{
		Provider: &mapProvider{},
		Chunks:   seedStore(),
	})
	if err == nil {
		t.Fatal("expected error for unknown index")
	}
}

func TestEngine_CacheIsSharedAcrossQueries(t *testing.T) {
	t.Parallel()

	provider := &mapProvider{vectors: map[string][]float64{
		"repeated query": {1, 0, 0},
	}}
	eng := newTestEngine(t, provider)

	ctx := context.Background()
	if _, err := eng.Retrieve(ctx, "repeated query", Options{}); err != nil {
		t.Fatalf("first Retrieve: %v", err)
	}
	if _, err := eng.Retrieve(ctx, "repeated query", Options{}); err != nil {
		t.Fatalf("second Retrieve: %v", err)
	}

	stats := eng.CacheStats()
	if stats.Hits == 0 {
		t.Fatalf("expected cache hits on repeated query: %+v", stats)
	}
	if stats.Entries == 0 {
		t.Fatalf("expected cached entries: %+v", stats)
	}
}
