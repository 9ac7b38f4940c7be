package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestGoroutinePool_RunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 3, QueueSize: 8})
	var done atomic.Int32

	for i := 0; i < 8; i++ {
		err := p.Submit(context.Background(), func(context.Context) error {
			done.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	p.Close()

	if got := done.Load(); got != 8 {
		t.Fatalf("ran %d of 8 tasks", got)
	}
	stats := p.Stats()
	if stats.Completed != 8 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGoroutinePool_ConcurrencyBounded(t *testing.T) {
	t.Parallel()

	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 16})
	defer p.Close()

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), func(context.Context) error {
			defer wg.Done()
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			active.Add(-1)
			return nil
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Fatalf("concurrency exceeded worker cap: peak=%d", peak.Load())
	}
}

func TestGoroutinePool_FullAppliesBackpressure(t *testing.T) {
	t.Parallel()

	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})

	release := make(chan struct{})
	var wg sync.WaitGroup
	blocker := func(context.Context) error {
		defer wg.Done()
		<-release
		return nil
	}

	// 1 个在 worker 里阻塞 + 1 个占满队列，之后必然拒绝。
	var rejected bool
	for i := 0; i < 4; i++ {
		wg.Add(1)
		if err := p.Submit(context.Background(), blocker); err != nil {
			wg.Done()
			if !errors.Is(err, ErrPoolFull) {
				t.Fatalf("unexpected error: %v", err)
			}
			rejected = true
		}
	}
	if !rejected {
		t.Fatal("saturated pool accepted every submission")
	}

	close(release)
	wg.Wait()
	p.Close()

	if p.Stats().Rejected == 0 {
		t.Fatalf("rejections not counted: %+v", p.Stats())
	}
}

func TestGoroutinePool_AbsorbsTaskPanic(t *testing.T) {
	t.Parallel()

	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4})
	if err := p.Submit(context.Background(), func(context.Context) error {
		panic("worker must survive this")
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(context.Background(), func(context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("Submit after panic: %v", err)
	}
	p.Close()

	stats := p.Stats()
	if stats.Failed != 1 || stats.Completed != 1 {
		t.Fatalf("panic not absorbed as failure: %+v", stats)
	}
}

func TestGoroutinePool_ClosedRejectsSubmissions(t *testing.T) {
	t.Parallel()

	p := NewGoroutinePool(GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 1})
	p.Close()
	p.Close() // 幂等

	err := p.Submit(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
