// Package lexical 提供基于倒排索引的 BM25 关键词检索。
//
// 本包故意不依赖 embedding 和 similarity：当全部向量基础设施不可用时，
// 词法检索仍然独立可用，这是引擎 fail-open 保证的基础。
package lexical

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Config BM25 参数。
type Config struct {
	// K1 词频饱和参数（常用 1.2–2.0）
	K1 float64 `yaml:"k1" json:"k1"`
	// B 文档长度归一化强度（常用 0.75）
	B float64 `yaml:"b" json:"b"`
}

// DefaultConfig 返回默认 BM25 参数。
func DefaultConfig() Config {
	return Config{K1: 1.5, B: 0.75}
}

// Hit 单条检索命中。
type Hit struct {
	ID    string
	Score float64
}

// posting 记录某词项在某文档中的出现次数。
type posting struct {
	docID string
	tf    int
}

// Index 倒排索引。Add 增量维护 df 统计；Search 按 BM25 打分。
// 读写并发安全。
type Index struct {
	config Config

	mu       sync.RWMutex
	postings map[string][]posting // term -> postings
	docLens  map[string]int       // docID -> term count
	totalLen int

	logger *zap.Logger
}

// NewIndex 创建倒排索引。
func NewIndex(config Config, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.K1 <= 0 {
		config.K1 = DefaultConfig().K1
	}
	if config.B <= 0 {
		config.B = DefaultConfig().B
	}
	return &Index{
		config:   config,
		postings: make(map[string][]posting),
		docLens:  make(map[string]int),
		logger:   logger.With(zap.String("component", "lexical_index")),
	}
}

// Add 将文档加入索引。重复 ID 会先移除旧内容再写入。
func (idx *Index) Add(id, text string) {
	terms := Tokenize(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLens[id]; exists {
		idx.removeLocked(id)
	}

	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	for term, count := range tf {
		idx.postings[term] = append(idx.postings[term], posting{docID: id, tf: count})
	}
	idx.docLens[id] = len(terms)
	idx.totalLen += len(terms)
}

// AddTerms 使用预先提取的词项加入文档（摄取阶段已经分词的 chunk 走这条路径）。
func (idx *Index) AddTerms(id string, terms []string) {
	if len(terms) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLens[id]; exists {
		idx.removeLocked(id)
	}

	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[strings.ToLower(t)]++
	}
	for term, count := range tf {
		idx.postings[term] = append(idx.postings[term], posting{docID: id, tf: count})
	}
	idx.docLens[id] = len(terms)
	idx.totalLen += len(terms)
}

func (idx *Index) removeLocked(id string) {
	for term, list := range idx.postings {
		filtered := list[:0]
		for _, p := range list {
			if p.docID != id {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
	idx.totalLen -= idx.docLens[id]
	delete(idx.docLens, id)
}

// Size 返回索引中的文档数。
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLens)
}

// Search 返回 BM25 得分最高的 topK 个文档，按得分降序、同分按 ID 升序。
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 || topK <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docLens)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(idx.totalLen) / float64(n)

	scores := make(map[string]float64)
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true

		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(list))
		idf := math.Log((float64(n)-df+0.5)/(df+0.5) + 1.0)

		for _, p := range list {
			tf := float64(p.tf)
			docLen := float64(idx.docLens[p.docID])
			numerator := tf * (idx.config.K1 + 1.0)
			denominator := tf + idx.config.K1*(1.0-idx.config.B+idx.config.B*(docLen/avgLen))
			scores[p.docID] += idf * numerator / denominator
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Tokenize 将文本切分为小写词项。
// 连续的字母/数字构成一个词项；CJK 字符逐字成项。
func Tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			terms = append(terms, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return terms
}
