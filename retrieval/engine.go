package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/internal/metrics"
	"github.com/BaSui01/retrievalflow/lexical"
	"github.com/BaSui01/retrievalflow/similarity"
	"github.com/BaSui01/retrievalflow/store"
	"github.com/BaSui01/retrievalflow/tokenizer"
)

const instrumentationName = "github.com/BaSui01/retrievalflow/retrieval"

var (
	// ErrEmptyQuery 查询文本为空或仅含空白。
	ErrEmptyQuery = errors.New("retrieval: empty query text")
	// ErrInvalidBudget token 预算非正。
	ErrInvalidBudget = errors.New("retrieval: token budget must be positive")
)

// Config 引擎配置。各子组件配置在此聚合，由 config 包从文件与环境
// 变量装配。
type Config struct {
	// TopKVector 每个向量信号返回的候选数，也是词法信号的默认深度。
	TopKVector int `yaml:"top_k_vector" json:"top_k_vector"`
	// TopKRerank 重排序后保留的候选数。
	TopKRerank int `yaml:"top_k_rerank" json:"top_k_rerank"`
	// TokenBudget 默认 token 预算，可被单次调用覆盖。
	TokenBudget int `yaml:"token_budget" json:"token_budget"`
	// SignalTimeout 单个信号的最长执行时间，超时按空结果处理。
	SignalTimeout time.Duration `yaml:"signal_timeout" json:"signal_timeout"`
	// Normalization 信号分数归一化策略：minmax、zscore 或 rank。
	Normalization string `yaml:"normalization" json:"normalization"`
	// Index 向量信号使用的索引：flat 为精确暴力路径（默认），
	// hnsw 为近似索引，以召回率换延迟，适合大语料。
	Index string `yaml:"index" json:"index"`
	// HNSW 近似索引参数，Index 为 hnsw 时生效。
	HNSW similarity.HNSWConfig `yaml:"hnsw" json:"hnsw"`

	Graph     GraphConfig     `yaml:"graph" json:"graph"`
	Reranker  RerankerConfig  `yaml:"reranker" json:"reranker"`
	Assembler AssemblerConfig `yaml:"assembler" json:"assembler"`
}

// DefaultConfig 返回引擎默认配置。
func DefaultConfig() Config {
	return Config{
		TopKVector:    50,
		TopKRerank:    20,
		TokenBudget:   4096,
		SignalTimeout: 10 * time.Second,
		Normalization: "minmax",
		Index:         "flat",
		HNSW:          similarity.DefaultHNSWConfig(),
		Graph:         DefaultGraphConfig(),
		Reranker:      DefaultRerankerConfig(),
		Assembler:     DefaultAssemblerConfig(),
	}
}

// Options 单次 Retrieve 调用的覆盖项。零值字段沿用引擎配置。
type Options struct {
	TopKVector  int
	TopKRerank  int
	TokenBudget int
}

// Result 单次检索的最终产出。
type Result struct {
	// QueryID 本次查询的唯一标识，贯穿日志与追踪。
	QueryID string `json:"query_id"`
	// Candidates 预算内的最终有序候选。
	Candidates []Candidate `json:"candidates"`
	// TotalTokens 最终候选的 token 总开销。
	TotalTokens int `json:"total_tokens"`
	// Truncated 表示触发了单候选截断例外。
	Truncated bool `json:"truncated,omitempty"`
	// Duration 检索全程耗时。
	Duration time.Duration `json:"duration"`
}

// Engine 混合检索引擎，聚合三路信号、归并、重排序与组装。
// 并发安全：嵌入缓存与词法索引自带锁，其余组件无共享可变状态。
type Engine struct {
	config Config

	cache    *embedding.Cache
	chunks   store.ChunkStore
	entities store.EntityStore

	mu           sync.RWMutex
	chunkIndex   *lexical.Index
	labelIndex   *lexical.Index
	chunkVectors similarity.VectorIndex

	ranker    similarity.Ranker
	vector    *VectorRetriever
	graph     *GraphRetriever
	merger    *Merger
	reranker  *Reranker
	assembler *Assembler

	logger  *zap.Logger
	metrics *metrics.Collector
}

// Dependencies 引擎的外部协作方。
type Dependencies struct {
	// Provider 嵌入函数，必填。
	Provider embedding.Provider
	// Chunks 文本块存储，必填。
	Chunks store.ChunkStore
	// Entities 实体与关系存储，可为 nil（图谱信号关闭）。
	Entities store.EntityStore
	// Scorer 成对打分函数，nil 时跳过重排序。
	Scorer ScoreProvider
	// Counter token 计数器，nil 时使用估算器。
	Counter tokenizer.Tokenizer
	// CacheConfig 嵌入缓存配置，零值用默认。
	CacheConfig embedding.CacheConfig
	// Logger 结构化日志器，nil 时使用 Nop。
	Logger *zap.Logger
	// Metrics 指标收集器，nil 时关闭指标。
	Metrics *metrics.Collector
}

// NewEngine 装配引擎。归一化策略名非法时返回错误。
func NewEngine(config Config, deps Dependencies) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.New("retrieval: embedding provider is required")
	}
	if deps.Chunks == nil {
		return nil, errors.New("retrieval: chunk store is required")
	}
	defaults := DefaultConfig()
	if config.TopKVector <= 0 {
		config.TopKVector = defaults.TopKVector
	}
	if config.TopKRerank <= 0 {
		config.TopKRerank = defaults.TopKRerank
	}
	if config.TokenBudget <= 0 {
		config.TokenBudget = defaults.TokenBudget
	}
	if config.SignalTimeout <= 0 {
		config.SignalTimeout = defaults.SignalTimeout
	}

	normalizer, err := NewNormalizer(config.Normalization)
	if err != nil {
		return nil, err
	}
	switch config.Index {
	case "", "flat", "hnsw":
	default:
		return nil, fmt.Errorf("retrieval: unknown vector index %q", config.Index)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	counter := deps.Counter
	if counter == nil {
		counter = tokenizer.NewEstimator()
	}

	cache := embedding.NewCache(deps.Provider, deps.CacheConfig, logger, deps.Metrics)
	ranker := similarity.NewRanker(similarity.DefaultConfig(), logger)
	vector := NewVectorRetriever(cache, ranker, logger)

	e := &Engine{
		config:     config,
		cache:      cache,
		chunks:     deps.Chunks,
		entities:   deps.Entities,
		chunkIndex: lexical.NewIndex(lexical.DefaultConfig(), logger),
		labelIndex: lexical.NewIndex(lexical.DefaultConfig(), logger),
		ranker:     ranker,
		vector:     vector,
		merger:     NewMerger(normalizer, logger),
		reranker:   NewReranker(config.Reranker, deps.Scorer, logger, deps.Metrics),
		assembler:  NewAssembler(config.Assembler, counter, logger, deps.Metrics),
		logger:     logger.With(zap.String("component", "engine")),
		metrics:    deps.Metrics,
	}
	if deps.Entities != nil {
		e.graph = NewGraphRetriever(config.Graph, vector, deps.Entities, e.labelIndex, logger)
	}
	return e, nil
}

// Refresh 从存储重建词法索引与 chunk 向量索引。语料变更后由调用方
// 触发；引擎自身不感知摄取。
func (e *Engine) Refresh(ctx context.Context) error {
	chunkIndex := lexical.NewIndex(lexical.DefaultConfig(), e.logger)
	chunks, err := e.chunks.ListChunks(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(chunks))
	vectors := make([][]float64, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Terms) > 0 {
			chunkIndex.AddTerms(c.ID, c.Terms)
		} else {
			chunkIndex.Add(c.ID, c.Text)
		}
		if len(c.Embedding) > 0 {
			ids = append(ids, c.ID)
			vectors = append(vectors, c.Embedding)
		}
	}
	vectorIndex := e.newChunkVectorIndex()
	if err := vectorIndex.Build(ids, vectors); err != nil {
		return fmt.Errorf("retrieval: build vector index: %w", err)
	}

	labelIndex := lexical.NewIndex(lexical.DefaultConfig(), e.logger)
	if e.entities != nil {
		entities, err := e.entities.ListEntities(ctx)
		if err != nil {
			return err
		}
		for _, entity := range entities {
			labelIndex.Add(entity.ID, entity.Label)
		}
	}

	e.mu.Lock()
	e.chunkIndex = chunkIndex
	e.labelIndex = labelIndex
	e.chunkVectors = vectorIndex
	e.mu.Unlock()
	if e.graph != nil {
		e.graph.SetLabelIndex(labelIndex)
	}

	e.logger.Info("indexes rebuilt",
		zap.Int("chunks", chunkIndex.Size()),
		zap.Int("entity_labels", labelIndex.Size()),
		zap.Int("vectors", vectorIndex.Size()),
		zap.String("index", e.config.Index))
	return nil
}

// newChunkVectorIndex 按配置构造 chunk 向量索引。
func (e *Engine) newChunkVectorIndex() similarity.VectorIndex {
	if e.config.Index == "hnsw" {
		return similarity.NewHNSWIndex(e.config.HNSW, e.logger)
	}
	return similarity.NewFlatIndex(e.ranker)
}

// Retrieve 单一入口：三路信号并发检索，归并、重排序并在预算内组装。
// 除空查询与非法预算外不返回错误，上游故障一律降级为空信号。
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		e.metrics.RecordRetrieve(time.Since(start), "invalid")
		return nil, ErrEmptyQuery
	}
	topKVector := opts.TopKVector
	if topKVector <= 0 {
		topKVector = e.config.TopKVector
	}
	topKRerank := opts.TopKRerank
	if topKRerank <= 0 {
		topKRerank = e.config.TopKRerank
	}
	budget := opts.TokenBudget
	if budget == 0 {
		budget = e.config.TokenBudget
	}
	if budget <= 0 {
		e.metrics.RecordRetrieve(time.Since(start), "invalid")
		return nil, ErrInvalidBudget
	}

	queryID := uuid.NewString()
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	span.SetAttributes(
		attribute.String("query_id", queryID),
		attribute.Int("top_k_vector", topKVector),
		attribute.Int("token_budget", budget),
	)
	defer span.End()

	logger := e.logger.With(zap.String("query_id", queryID))

	vectorHits, lexicalHits, graphHits := e.fanOut(ctx, logger, query, topKVector)

	merged := e.merger.Merge(vectorHits, lexicalHits, graphHits)
	reranked := e.reranker.Rerank(ctx, query, merged, topKRerank)
	assembled := e.assembler.Assemble(reranked, budget)

	elapsed := time.Since(start)
	e.metrics.RecordRetrieve(elapsed, "ok")
	logger.Info("retrieve completed",
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("lexical_hits", len(lexicalHits)),
		zap.Int("graph_hits", len(graphHits)),
		zap.Int("merged", len(merged)),
		zap.Int("final", len(assembled.Candidates)),
		zap.Int("total_tokens", assembled.TotalTokens),
		zap.Duration("duration", elapsed))

	return &Result{
		QueryID:     queryID,
		Candidates:  assembled.Candidates,
		TotalTokens: assembled.TotalTokens,
		Truncated:   assembled.Truncated,
		Duration:    elapsed,
	}, nil
}

// fanOut 并发执行三路信号，逐信号超时与故障隔离：
// 任一信号超时或失败都只影响自身的贡献。
func (e *Engine) fanOut(ctx context.Context, logger *zap.Logger, query string, topK int) (vectorHits, lexicalHits, graphHits []Candidate) {
	var wg sync.WaitGroup
	run := func(signal string, fn func(context.Context) []Candidate, out *[]Candidate) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					e.metrics.RecordSignalFailure(signal, "panic")
					logger.Error("signal panicked, contribution empty",
						zap.String("signal", signal),
						zap.Any("panic", rec))
				}
			}()
			signalCtx, cancel := context.WithTimeout(ctx, e.config.SignalTimeout)
			defer cancel()
			started := time.Now()
			hits := fn(signalCtx)
			if err := signalCtx.Err(); err != nil && len(hits) == 0 {
				e.metrics.RecordSignalFailure(signal, "timeout")
				logger.Warn("signal timed out", zap.String("signal", signal))
				return
			}
			e.metrics.RecordSignal(signal, time.Since(started), len(hits))
			*out = hits
		}()
	}

	run("vector", func(c context.Context) []Candidate {
		e.mu.RLock()
		index := e.chunkVectors
		e.mu.RUnlock()
		if index != nil && index.Size() > 0 {
			return e.vector.SearchIndex(c, query, index, e.chunks, topK)
		}
		// Refresh 之前索引为空，退回全量扫描。
		return e.vector.SearchChunks(c, query, e.chunks, topK)
	}, &vectorHits)

	run("lexical", func(c context.Context) []Candidate {
		return e.searchLexical(c, query, topK)
	}, &lexicalHits)

	if e.graph != nil {
		run("graph", func(c context.Context) []Candidate {
			return e.graph.Expand(c, query, topK)
		}, &graphHits)
	}

	wg.Wait()
	return vectorHits, lexicalHits, graphHits
}

// searchLexical 词法信号：不依赖任何向量基础设施，是向量链路
// 全灭时的保底信号。
func (e *Engine) searchLexical(ctx context.Context, query string, topK int) []Candidate {
	e.mu.RLock()
	index := e.chunkIndex
	e.mu.RUnlock()

	hits, err := index.Search(ctx, query, topK)
	if err != nil {
		e.logger.Warn("lexical search failed, signal empty", zap.Error(err))
		return nil
	}
	candidates := make([]Candidate, 0, len(hits))
	for rank, hit := range hits {
		chunk, err := e.chunks.GetChunk(ctx, hit.ID)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         chunk.ID,
			Kind:       KindChunk,
			Text:       chunk.Text,
			DocumentID: chunk.DocumentID,
			Embedding:  chunk.Embedding,
			Sources:    []Source{SourceLexical},
			RawScore:   hit.Score,
			Rank:       rank,
		})
	}
	return candidates
}

// CacheStats 暴露嵌入缓存的运行计数，仅供监控读取。
func (e *Engine) CacheStats() embedding.CacheStats {
	return e.cache.Stats()
}

// Cache 返回嵌入缓存，供快照保存与恢复使用。
func (e *Engine) Cache() *embedding.Cache {
	return e.cache
}
