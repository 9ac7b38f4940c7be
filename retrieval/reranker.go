package retrieval

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/internal/metrics"
	"github.com/BaSui01/retrievalflow/lexical"
)

// QueryDocPair 查询-文档对
type QueryDocPair struct {
	Query    string
	Document string
}

// ScoreProvider 成对相关性打分函数，通常由 Cross-Encoder 模型实现。
// 支持批量调用以摊薄调用开销；可能整批失败。
type ScoreProvider interface {
	// Score 计算每个查询-文档对的相关性分数，与输入同序。
	Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error)

	// Name 返回提供器名称。
	Name() string
}

// RerankerConfig 重排序配置。
type RerankerConfig struct {
	// BatchSize 单次打分调用携带的对数上限。
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// MaxCandidates 参与重排序的候选上限，超出部分保持归并后次序。
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
	// Timeout 单个批次打分调用的最长等待时间，超时批次按失败批次
	// 降级处理，检索整体从不因打分方挂起而阻塞。
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultRerankerConfig 返回重排序默认配置。
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		BatchSize:     32,
		MaxCandidates: 200,
		Timeout:       5 * time.Second,
	}
}

// Reranker 对归并后的候选应用成对相关性模型并重新排序。
// 部分批次失败时，该批候选保持重排序前的相对次序，追加在
// 成功打分的候选之后；整个操作从不因打分失败而报错。
type Reranker struct {
	config   RerankerConfig
	provider ScoreProvider
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewReranker 创建重排序器。provider 为 nil 时 Rerank 原样返回输入。
func NewReranker(config RerankerConfig, provider ScoreProvider, logger *zap.Logger, collector *metrics.Collector) *Reranker {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRerankerConfig().BatchSize
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = DefaultRerankerConfig().MaxCandidates
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRerankerConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		config:   config,
		provider: provider,
		logger:   logger.With(zap.String("component", "reranker")),
		metrics:  collector,
	}
}

// Rerank 按重排序分数降序返回前 topK 个候选，同分按重排序前的
// 归一化分数回退。打分失败的候选排在成功打分的候选之后。
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if r.provider == nil {
		return candidates[:topK]
	}

	pool := candidates
	if len(pool) > r.config.MaxCandidates {
		r.logger.Debug("limiting rerank pool",
			zap.Int("candidates", len(pool)),
			zap.Int("limit", r.config.MaxCandidates))
		pool = pool[:r.config.MaxCandidates]
	}

	scored := make([]Candidate, 0, len(pool))
	failed := make([]Candidate, 0)

	for start := 0; start < len(pool); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(pool) {
			end = len(pool)
		}
		batch := pool[start:end]

		pairs := make([]QueryDocPair, len(batch))
		for i, c := range batch {
			pairs[i] = QueryDocPair{Query: query, Document: c.Text}
		}

		batchCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		scores, err := r.provider.Score(batchCtx, pairs)
		cancel()
		if err != nil || len(scores) != len(batch) {
			r.metrics.RecordRerankBatch(true)
			r.logger.Warn("rerank batch failed, keeping pre-rerank order",
				zap.String("provider", r.provider.Name()),
				zap.Int("batch", len(batch)),
				zap.Error(err))
			failed = append(failed, batch...)
			continue
		}
		r.metrics.RecordRerankBatch(false)

		for i, c := range batch {
			c.RerankScore = scores[i]
			c.Reranked = true
			scored = append(scored, c)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RerankScore != scored[j].RerankScore {
			return scored[i].RerankScore > scored[j].RerankScore
		}
		return scored[i].Score > scored[j].Score
	})

	out := append(scored, failed...)
	if len(candidates) > len(pool) {
		out = append(out, candidates[len(pool):]...)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// SimpleScoreProvider 无模型的轻量打分器，混合精确匹配率、词频
// 与近邻度三个特征。用于本地开发与测试，也是模型不可用时的兜底。
type SimpleScoreProvider struct{}

func (SimpleScoreProvider) Name() string { return "simple" }

// Score 对每对 (query, document) 计算 [0,1] 区间的启发式分数。
func (SimpleScoreProvider) Score(_ context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for i, pair := range pairs {
		queryTerms := lexical.Tokenize(pair.Query)
		docTerms := lexical.Tokenize(pair.Document)
		scores[i] = exactMatchScore(queryTerms, docTerms)*0.4 +
			termFrequencyScore(queryTerms, docTerms)*0.4 +
			proximityScore(queryTerms, docTerms)*0.2
	}
	return scores, nil
}

func exactMatchScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}
	matched := 0
	for _, qt := range queryTerms {
		if _, ok := docSet[qt]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

func termFrequencyScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 || len(docTerms) == 0 {
		return 0
	}
	freq := make(map[string]int, len(docTerms))
	for _, t := range docTerms {
		freq[t]++
	}
	total := 0
	for _, qt := range queryTerms {
		total += freq[qt]
	}
	score := float64(total) / float64(len(docTerms))
	if score > 1 {
		score = 1
	}
	return score
}

// proximityScore 衡量查询词在文档中的聚集程度：
// 覆盖全部查询词的最短窗口越短，分数越高。
func proximityScore(queryTerms, docTerms []string) float64 {
	if len(queryTerms) < 2 || len(docTerms) == 0 {
		return 0
	}
	wanted := make(map[string]struct{}, len(queryTerms))
	for _, qt := range queryTerms {
		wanted[qt] = struct{}{}
	}

	best := -1
	counts := make(map[string]int)
	covered := 0
	left := 0
	for right, t := range docTerms {
		if _, ok := wanted[t]; !ok {
			continue
		}
		counts[t]++
		if counts[t] == 1 {
			covered++
		}
		for covered == len(wanted) {
			window := right - left + 1
			if best < 0 || window < best {
				best = window
			}
			lt := docTerms[left]
			if _, ok := wanted[lt]; ok {
				counts[lt]--
				if counts[lt] == 0 {
					covered--
				}
			}
			left++
		}
	}
	if best < 0 {
		return 0
	}
	return float64(len(wanted)) / float64(best)
}
