// Package ingest 提供语料装载前的嵌入回填管线。
// 缺失嵌入的 chunk 按批次发往嵌入服务，批次间并发受
// goroutine 池约束，避免打爆提供方的并发额度。
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/internal/pool"
	"github.com/BaSui01/retrievalflow/lexical"
	"github.com/BaSui01/retrievalflow/store"
)

// Config 回填管线配置。
type Config struct {
	// BatchSize 单次嵌入请求携带的文本数
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Workers 并发嵌入请求上限
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig 返回默认管线配置。
func DefaultConfig() Config {
	return Config{
		BatchSize: 16,
		Workers:   4,
	}
}

// Pipeline 嵌入回填管线。
type Pipeline struct {
	config   Config
	provider embedding.Provider
	pool     *pool.GoroutinePool
	logger   *zap.Logger
}

// NewPipeline 创建回填管线。
func NewPipeline(config Config, provider embedding.Provider, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	p := pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: config.Workers,
		QueueSize:  config.Workers * 4,
	})
	return &Pipeline{
		config:   config,
		provider: provider,
		pool:     p,
		logger:   logger.With(zap.String("component", "ingest")),
	}
}

// EmbedChunks 为缺失嵌入的 chunk 回填向量，同时补齐词法 Terms。
// 原地修改并返回同一切片；任一批次失败则整体失败，
// 装载是一次性离线操作，部分成功的语料没有使用价值。
func (p *Pipeline) EmbedChunks(ctx context.Context, chunks []store.Chunk) ([]store.Chunk, error) {
	var pending []int
	for i := range chunks {
		if len(chunks[i].Terms) == 0 && chunks[i].Text != "" {
			chunks[i].Terms = lexical.Tokenize(chunks[i].Text)
		}
		if len(chunks[i].Embedding) == 0 && chunks[i].Text != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return chunks, nil
	}

	p.logger.Info("backfilling embeddings",
		zap.Int("total", len(chunks)),
		zap.Int("pending", len(pending)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(pending); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(pending))
		batch := pending[start:end]

		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()

			texts := make([]string, len(batch))
			for j, idx := range batch {
				texts[j] = chunks[idx].Text
			}
			vectors, err := p.provider.EmbedBatch(ctx, texts)
			if err == nil && len(vectors) != len(texts) {
				err = fmt.Errorf("ingest: provider returned %d vectors for %d texts", len(vectors), len(texts))
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			for j, idx := range batch {
				chunks[idx].Embedding = vectors[j]
			}
			return nil
		}

		if err := p.pool.Submit(ctx, task); err != nil {
			// 池满时在调用方 goroutine 内联执行，保持进度。
			_ = task(ctx)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("ingest: embed chunks: %w", firstErr)
	}
	return chunks, nil
}

// EmbedEntities 为缺失嵌入的实体回填向量，向量由标签文本生成。
func (p *Pipeline) EmbedEntities(ctx context.Context, entities []store.Entity) ([]store.Entity, error) {
	var pending []int
	for i := range entities {
		if len(entities[i].Embedding) == 0 && entities[i].Label != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return entities, nil
	}

	for start := 0; start < len(pending); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for j, idx := range batch {
			texts[j] = entities[idx].Label
		}
		vectors, err := p.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingest: embed entities: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("ingest: provider returned %d vectors for %d labels", len(vectors), len(texts))
		}
		for j, idx := range batch {
			entities[idx].Embedding = vectors[j]
		}
	}
	return entities, nil
}

// Stats 返回底层 goroutine 池的统计信息。
func (p *Pipeline) Stats() pool.GoroutinePoolStats {
	return p.pool.Stats()
}

// Close 关闭管线，等待在途批次完成。
func (p *Pipeline) Close() {
	p.pool.Close()
}
