package similarity

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Hit 单条排序结果：候选向量在输入切片中的下标及其余弦相似度。
type Hit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Ranker 对候选向量按与查询向量的余弦相似度降序排序。
// 得分相同的按原始下标升序，保证确定性。
type Ranker interface {
	// Rank 返回得分最高的 k 个命中。k <= 0 或无候选时返回 nil。
	Rank(query []float64, vectors [][]float64, k int) []Hit

	// Name 返回执行策略名（"sequential" / "parallel"）。
	Name() string
}

// Config 排序引擎配置。
type Config struct {
	// ParallelThreshold 候选数低于该值时强制顺序计算。
	ParallelThreshold int `yaml:"parallel_threshold" json:"parallel_threshold"`
	// Workers 并行分片数，0 表示使用 runtime.NumCPU()。
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{ParallelThreshold: 256, Workers: 0}
}

// 并行能力在进程内只探测一次；每次调用都探测的延迟成本不可接受。
var (
	capabilityOnce sync.Once
	parallelOK     bool
)

// Capability 返回并行路径是否可用。首次调用时探测并缓存。
func Capability() bool {
	capabilityOnce.Do(func() {
		parallelOK = runtime.NumCPU() > 1 && runtime.GOMAXPROCS(0) > 1
	})
	return parallelOK
}

// NewRanker 按探测结果选择执行策略。
// 并行路径不可用时自动回退到顺序路径，两者排序结果一致。
func NewRanker(config Config, logger *zap.Logger) Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ParallelThreshold <= 0 {
		config.ParallelThreshold = DefaultConfig().ParallelThreshold
	}
	if Capability() {
		workers := config.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		logger.Debug("similarity ranker selected",
			zap.String("strategy", "parallel"),
			zap.Int("workers", workers),
			zap.Int("parallel_threshold", config.ParallelThreshold))
		return &parallelRanker{threshold: config.ParallelThreshold, workers: workers}
	}
	logger.Debug("similarity ranker selected", zap.String("strategy", "sequential"))
	return &sequentialRanker{}
}

// NewSequentialRanker 显式创建顺序排序器（测试和回退等价性验证用）。
func NewSequentialRanker() Ranker {
	return &sequentialRanker{}
}

// NewParallelRanker 显式创建并行排序器。
func NewParallelRanker(threshold, workers int) Ranker {
	if threshold <= 0 {
		threshold = DefaultConfig().ParallelThreshold
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &parallelRanker{threshold: threshold, workers: workers}
}

// ====== 顺序路径 ======

type sequentialRanker struct{}

func (r *sequentialRanker) Name() string { return "sequential" }

func (r *sequentialRanker) Rank(query []float64, vectors [][]float64, k int) []Hit {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}
	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		scores[i] = Cosine(query, v)
	}
	return topK(scores, k)
}

// ====== 并行路径 ======

type parallelRanker struct {
	threshold int
	workers   int
}

func (r *parallelRanker) Name() string { return "parallel" }

func (r *parallelRanker) Rank(query []float64, vectors [][]float64, k int) []Hit {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}

	scores := make([]float64, len(vectors))

	// 小输入的并行调度开销超过收益。
	if len(vectors) < r.threshold {
		for i, v := range vectors {
			scores[i] = Cosine(query, v)
		}
		return topK(scores, k)
	}

	chunk := (len(vectors) + r.workers - 1) / r.workers
	var g errgroup.Group
	for start := 0; start < len(vectors); start += chunk {
		end := start + chunk
		if end > len(vectors) {
			end = len(vectors)
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				scores[i] = Cosine(query, vectors[i])
			}
			return nil
		})
	}
	// workers 只写各自分片且永不返回错误。
	_ = g.Wait()

	return topK(scores, k)
}

// topK 对分数数组做确定性选择：得分降序，同分下标升序。
func topK(scores []float64, k int) []Hit {
	hits := make([]Hit, len(scores))
	for i, s := range scores {
		hits[i] = Hit{Index: i, Score: s}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Index < hits[j].Index
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Cosine 计算余弦相似度。维度不匹配或任一向量为零向量时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
