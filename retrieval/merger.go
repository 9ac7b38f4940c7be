package retrieval

import (
	"sort"

	"go.uber.org/zap"
)

// Merger 把各信号的候选集合并成一个去重集合。
// 合并前逐信号归一化分数；同一 ID 出现在多个信号时保留一条记录，
// 合并来源标签并取各信号中最高的归一化分数。
type Merger struct {
	normalizer Normalizer
	logger     *zap.Logger
}

// NewMerger 创建归并器。normalizer 为 nil 时使用 min-max。
func NewMerger(normalizer Normalizer, logger *zap.Logger) *Merger {
	if normalizer == nil {
		normalizer = MinMaxNormalizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		normalizer: normalizer,
		logger:     logger.With(zap.String("component", "merger")),
	}
}

// Merge 归并任意个信号批次。每个批次独立归一化；输出按归一化分数
// 降序排列，同分按 ID 升序保证确定性。
func (m *Merger) Merge(batches ...[]Candidate) []Candidate {
	merged := make(map[string]*Candidate)
	for _, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		raw := make([]float64, len(batch))
		for i := range batch {
			raw[i] = batch[i].RawScore
		}
		normalized := m.normalizer.Normalize(raw)

		for i := range batch {
			c := batch[i]
			c.Score = normalized[i]
			existing, ok := merged[c.ID]
			if !ok {
				merged[c.ID] = &c
				continue
			}
			existing.Sources = mergeSources(existing.Sources, c.Sources)
			if c.Score > existing.Score {
				existing.Score = c.Score
				existing.RawScore = c.RawScore
				existing.Rank = c.Rank
			}
			if len(existing.Relations) == 0 {
				existing.Relations = c.Relations
			}
		}
	}

	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func mergeSources(a, b []Source) []Source {
	for _, s := range b {
		found := false
		for _, existing := range a {
			if existing == s {
				found = true
				break
			}
		}
		if !found {
			a = append(a, s)
		}
	}
	return a
}
