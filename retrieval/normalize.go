package retrieval

import (
	"fmt"
	"math"
	"sort"
)

// Normalizer 把一个信号批次内的原始分数映射到可比区间。
// 向量、词法、图谱分数天然不可比，归并前必须逐信号归一化。
// 具体方案（min-max / z-score / rank）是可配置策略。
type Normalizer interface {
	// Normalize 返回与输入同序的归一化分数。
	Normalize(scores []float64) []float64

	// Name 返回策略名。
	Name() string
}

// NewNormalizer 按名称创建归一化策略。空名使用 min-max。
func NewNormalizer(name string) (Normalizer, error) {
	switch name {
	case "", "minmax":
		return MinMaxNormalizer{}, nil
	case "zscore":
		return ZScoreNormalizer{}, nil
	case "rank":
		return RankNormalizer{}, nil
	default:
		return nil, fmt.Errorf("retrieval: unknown normalization strategy %q", name)
	}
}

// MinMaxNormalizer 线性映射到 [0,1]。全部分数相同时统一为 1。
type MinMaxNormalizer struct{}

func (MinMaxNormalizer) Name() string { return "minmax" }

func (MinMaxNormalizer) Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	span := maxScore - minScore
	if span == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - minScore) / span
	}
	return out
}

// ZScoreNormalizer 标准分归一化，再经 sigmoid 压缩到 (0,1)。
type ZScoreNormalizer struct{}

func (ZScoreNormalizer) Name() string { return "zscore" }

func (ZScoreNormalizer) Normalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	stddev := math.Sqrt(variance / float64(len(scores)))

	out := make([]float64, len(scores))
	if stddev == 0 {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		z := (s - mean) / stddev
		out[i] = 1.0 / (1.0 + math.Exp(-z))
	}
	return out
}

// RankNormalizer 忽略分数幅度，按名次线性映射：第一名 1，最后一名趋近 0。
// 同分按原始下标保持稳定次序。
type RankNormalizer struct{}

func (RankNormalizer) Name() string { return "rank" }

func (RankNormalizer) Normalize(scores []float64) []float64 {
	n := len(scores)
	if n == 0 {
		return nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	out := make([]float64, n)
	for rank, idx := range order {
		out[idx] = float64(n-rank) / float64(n)
	}
	return out
}
