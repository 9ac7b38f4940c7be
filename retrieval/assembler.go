package retrieval

import (
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/internal/metrics"
	"github.com/BaSui01/retrievalflow/tokenizer"
)

// AssemblerConfig 上下文组装配置。
type AssemblerConfig struct {
	// DiversityCap 单个来源文档允许进入最终集合的候选数上限。
	// 0 或负值表示不限制。
	DiversityCap int `yaml:"diversity_cap" json:"diversity_cap"`
	// DedupRadius 指纹海明距离不超过该值的候选视为近重复。
	DedupRadius int `yaml:"dedup_radius" json:"dedup_radius"`
}

// DefaultAssemblerConfig 返回组装默认配置。
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		DiversityCap: 3,
		DedupRadius:  3,
	}
}

// Assembled 组装结果。
type Assembled struct {
	// Candidates 按最终顺序排列的入选候选。
	Candidates []Candidate
	// TotalTokens 入选候选的 token 总开销。
	TotalTokens int
	// Truncated 表示触发了单候选截断例外：预算容不下任何完整候选时，
	// 排名最高的候选被截断后入选，保证非空语料下结果不为空。
	Truncated bool
}

// Assembler 在硬性 token 预算内做贪心选择，同时执行来源多样性
// 上限与语义去重。选择分两轮：第一轮跳过超出多样性配额的候选但
// 不丢弃；第二轮在预算仍有剩余时放行被延后的候选。
type Assembler struct {
	config  AssemblerConfig
	counter tokenizer.Tokenizer
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewAssembler 创建组装器。
func NewAssembler(config AssemblerConfig, counter tokenizer.Tokenizer, logger *zap.Logger, collector *metrics.Collector) *Assembler {
	if config.DedupRadius < 0 {
		config.DedupRadius = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		config:  config,
		counter: counter,
		logger:  logger.With(zap.String("component", "assembler")),
		metrics: collector,
	}
}

// assemblyState 单次查询的预算累加器。
type assemblyState struct {
	remaining    int
	accepted     []Candidate
	perDocument  map[string]int
	fingerprints []Fingerprint
}

// Assemble 按 ranked 的顺序贪心装入候选，总开销不超过 budget。
// budget 必须为正，由引擎在入口校验。
func (a *Assembler) Assemble(ranked []Candidate, budget int) Assembled {
	state := &assemblyState{
		remaining:   budget,
		perDocument: make(map[string]int),
	}

	deferred := a.fill(state, ranked, false)
	if len(deferred) > 0 && state.remaining > 0 {
		a.fill(state, deferred, true)
	}

	result := Assembled{
		Candidates:  state.accepted,
		TotalTokens: budget - state.remaining,
	}

	// 单候选截断例外：一个完整候选都装不下时截断最优候选。
	if len(result.Candidates) == 0 && len(ranked) > 0 {
		top := ranked[0]
		truncated, err := tokenizer.Truncate(a.counter, top.Text, budget)
		if err == nil && truncated != "" {
			top.Text = truncated
			result.Candidates = []Candidate{top}
			result.TotalTokens = a.tokenCost(truncated)
			result.Truncated = true
			a.logger.Debug("budget below smallest candidate, truncated top hit",
				zap.String("id", top.ID),
				zap.Int("budget", budget))
		}
	}

	a.metrics.RecordAssembly(result.TotalTokens, len(result.Candidates), result.Truncated)
	return result
}

// fill 执行一轮贪心装入，返回因多样性配额被延后的候选。
// ignoreCap 为 true 时（第二轮）不再检查配额。
func (a *Assembler) fill(state *assemblyState, candidates []Candidate, ignoreCap bool) []Candidate {
	var deferred []Candidate
	for _, c := range candidates {
		if state.remaining <= 0 {
			break
		}
		if !ignoreCap && a.overQuota(state, &c) {
			deferred = append(deferred, c)
			continue
		}
		cost := a.tokenCost(c.Text)
		if cost > state.remaining {
			continue
		}
		fp := fingerprintFor(&c)
		if a.isDuplicate(state, fp) {
			continue
		}
		state.remaining -= cost
		state.accepted = append(state.accepted, c)
		state.fingerprints = append(state.fingerprints, fp)
		if c.DocumentID != "" {
			state.perDocument[c.DocumentID]++
		}
	}
	return deferred
}

// tokenCost 计算文本的 token 开销。计数失败时退化为按 4 字符
// 约 1 token 的粗略估计，保证组装从不因计数失败而中断。
func (a *Assembler) tokenCost(text string) int {
	n, err := a.counter.CountTokens(text)
	if err != nil {
		return len(text)/4 + 1
	}
	return n
}

func (a *Assembler) overQuota(state *assemblyState, c *Candidate) bool {
	if a.config.DiversityCap <= 0 || c.DocumentID == "" {
		return false
	}
	return state.perDocument[c.DocumentID] >= a.config.DiversityCap
}

func (a *Assembler) isDuplicate(state *assemblyState, fp Fingerprint) bool {
	for _, accepted := range state.fingerprints {
		if fp.NearDuplicate(accepted, a.config.DedupRadius) {
			return true
		}
	}
	return false
}
