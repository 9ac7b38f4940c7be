package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// countingProvider returns a deterministic vector per text and counts
// underlying embed calls.
type countingProvider struct {
	calls int64
	delay time.Duration
	fail  atomic.Bool
}

func (p *countingProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.fail.Load() {
		return nil, errors.New("provider down")
	}
	vec := make([]float64, 4)
	for i, r := range text {
		vec[i%4] += float64(r)
	}
	return vec, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
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

func (p *countingProvider) Name() string    { return "counting" }
func (p *countingProvider) Dimensions() int { return 4 }

func newTestCache(p Provider, capacity int) *Cache {
	return NewCache(p, CacheConfig{Capacity: capacity}, zap.NewNop(), nil)
}

// TestCache_Singleflight verifies that N concurrent lookups of the same
// uncached text trigger exactly one provider call and all callers receive
// the identical vector.
func TestCache_Singleflight(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{delay: 50 * time.Millisecond}
	cache := newTestCache(provider, 16)

	const n = 20
	results := make([][]float64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCompute(context.Background(), "shared text")
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		for j := range results[i] {
			if results[i][j] != results[0][j] {
				t.Fatalf("caller %d received a different vector", i)
			}
		}
	}
}

func TestCache_SecondCallIsAHit(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{}
	cache := newTestCache(provider, 16)

	first, err := cache.GetOrCompute(context.Background(), "hello")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := cache.GetOrCompute(context.Background(), "hello")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("vectors differ between calls")
		}
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// TestCache_FailureNotCached verifies that a transient provider failure is
// propagated but does not poison subsequent lookups of the same key.
func TestCache_FailureNotCached(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{}
	provider.fail.Store(true)
	cache := newTestCache(provider, 16)

	if _, err := cache.GetOrCompute(context.Background(), "flaky"); err == nil {
		t.Fatal("expected error from failing provider")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed computation was cached, entries=%d", cache.Len())
	}

	provider.fail.Store(false)
	vec, err := cache.GetOrCompute(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("recovery call: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if got := atomic.LoadInt64(&provider.calls); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestCache_NormalizationSharesEntries(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{}
	cache := newTestCache(provider, 16)

	if _, err := cache.GetOrCompute(context.Background(), "Hello   World"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := cache.GetOrCompute(context.Background(), "  hello world  "); err != nil {
		t.Fatalf("second: %v", err)
	}

	if got := atomic.LoadInt64(&provider.calls); got != 1 {
		t.Fatalf("formatting variants did not share an entry: %d calls", got)
	}
}

func TestCache_EmptyTextRejected(t *testing.T) {
	t.Parallel()

	cache := newTestCache(&countingProvider{}, 16)
	if _, err := cache.GetOrCompute(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestCache_LRUEviction(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{}
	cache := newTestCache(provider, 2)

	ctx := context.Background()
	cache.GetOrCompute(ctx, "one")
	cache.GetOrCompute(ctx, "two")
	// Touch "one" so "two" becomes the eviction victim.
	cache.GetOrCompute(ctx, "one")
	cache.GetOrCompute(ctx, "three")

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}

	before := atomic.LoadInt64(&provider.calls)
	cache.GetOrCompute(ctx, "one")
	if got := atomic.LoadInt64(&provider.calls); got != before {
		t.Fatal("entry \"one\" was evicted despite recent use")
	}
	cache.GetOrCompute(ctx, "two")
	if got := atomic.LoadInt64(&provider.calls); got != before+1 {
		t.Fatal("entry \"two\" should have been evicted")
	}

	if stats := cache.Stats(); stats.Evictions == 0 {
		t.Fatalf("expected evictions in stats: %+v", stats)
	}
}

// TestCache_CallerCancellationDoesNotAbortComputation verifies that a caller
// abandoning the wait leaves the computation running: its result is stored
// and served to later callers.
func TestCache_CallerCancellationDoesNotAbortComputation(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{delay: 100 * time.Millisecond}
	cache := newTestCache(provider, 16)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := cache.GetOrCompute(ctx, "slow text"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// Wait for the in-flight computation to complete and store.
	deadline := time.Now().Add(2 * time.Second)
	for cache.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if cache.Len() != 1 {
		t.Fatal("abandoned computation was not stored")
	}

	before := atomic.LoadInt64(&provider.calls)
	if _, err := cache.GetOrCompute(context.Background(), "slow text"); err != nil {
		t.Fatalf("follow-up call: %v", err)
	}
	if got := atomic.LoadInt64(&provider.calls); got != before {
		t.Fatalf("expected cache hit, provider called again (%d -> %d)", before, got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"Hello   World", "hello world"},
		{"  trimmed  ", "trimmed"},
		{"Tabs\tand\nnewlines", "tabs and newlines"},
		{"ＦＵＬＬＷＩＤＴＨ", "fullwidth"}, // NFKC folds fullwidth forms
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKey_DeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	if Key("a b") != Key("a  b") {
		t.Fatal("equivalent texts produced different keys")
	}
	if Key("alpha") == Key("beta") {
		t.Fatal("distinct texts produced the same key")
	}
	if len(Key("x")) != 64 {
		t.Fatalf("unexpected key length %d", len(Key("x")))
	}
}

func BenchmarkCache_Hit(b *testing.B) {
	cache := newTestCache(&countingProvider{}, 16)
	ctx := context.Background()
	if _, err := cache.GetOrCompute(ctx, "benchmark text"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.GetOrCompute(ctx, "benchmark text"); err != nil {
			b.Fatal(err)
		}
	}
}

