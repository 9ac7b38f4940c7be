// Package pool 提供有界 goroutine 池。摄取管线用它限制语料回填期间
// 并发的嵌入请求数：worker 按需创建，封顶后由队列缓冲，队列满时
// Submit 返回 ErrPoolFull，由调用方决定内联执行或放弃。
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrPoolClosed 池已关闭。
	ErrPoolClosed = errors.New("pool: closed")
	// ErrPoolFull worker 与队列均已饱和。
	ErrPoolFull = errors.New("pool: full")
)

// Task 池中执行的工作单元。
type Task func(ctx context.Context) error

// GoroutinePoolConfig 池配置。
type GoroutinePoolConfig struct {
	// MaxWorkers worker 数上限。
	MaxWorkers int `json:"max_workers"`
	// QueueSize 等待队列容量。
	QueueSize int `json:"queue_size"`
}

// DefaultGoroutinePoolConfig 返回默认池配置。
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers: 4,
		QueueSize:  16,
	}
}

// GoroutinePool 有界 goroutine 池。worker 在首个任务到达时惰性创建，
// 存活至 Close；任务 panic 被吸收并计入失败数。
type GoroutinePool struct {
	maxWorkers int
	tasks      chan taskWrapper

	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// NewGoroutinePool 创建池。非正参数回落到默认值。
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	defaults := DefaultGoroutinePoolConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	return &GoroutinePool{
		maxWorkers: config.MaxWorkers,
		tasks:      make(chan taskWrapper, config.QueueSize),
	}
}

// Submit 异步提交任务。队列满且 worker 数已达上限时返回 ErrPoolFull，
// 不阻塞调用方。
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	wrapper := taskWrapper{task: task, ctx: ctx}
	select {
	case p.tasks <- wrapper:
		p.ensureWorker()
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.tasks <- wrapper:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	for wrapper := range p.tasks {
		p.activeCount.Add(1)
		err := p.execute(wrapper)
		p.activeCount.Add(-1)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *GoroutinePool) execute(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("pool: task panicked")
		}
	}()
	return wrapper.task(wrapper.ctx)
}

// Close 关闭池并等待在途任务完成。幂等。
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}

// Stats 返回池的运行计数快照。
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.tasks),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats 池的运行计数。
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
