package similarity

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorIndex 向量索引接口。
// Flat 实现做精确暴力搜索；HNSW 实现以召回率换延迟，适合大语料。
type VectorIndex interface {
	// Build 批量构建索引。
	Build(ids []string, vectors [][]float64) error

	// Search 返回与 query 最相似的 k 个 ID 及得分（余弦相似度，降序）。
	Search(query []float64, k int) ([]IndexHit, error)

	// Add 添加单个向量。
	Add(id string, vector []float64) error

	// Size 返回索引中的向量数。
	Size() int
}

// IndexHit 索引搜索命中。
type IndexHit struct {
	ID    string
	Score float64
}

// ====== Flat 索引 ======

// FlatIndex 精确暴力索引，内部复用 Ranker 的执行策略。
type FlatIndex struct {
	mu      sync.RWMutex
	ids     []string
	vectors [][]float64
	ranker  Ranker
}

// NewFlatIndex 创建精确索引。
func NewFlatIndex(ranker Ranker) *FlatIndex {
	if ranker == nil {
		ranker = NewSequentialRanker()
	}
	return &FlatIndex{ranker: ranker}
}

func (idx *FlatIndex) Build(ids []string, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("similarity: ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ids = append([]string(nil), ids...)
	idx.vectors = append([][]float64(nil), vectors...)
	return nil
}

func (idx *FlatIndex) Add(id string, vector []float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ids = append(idx.ids, id)
	idx.vectors = append(idx.vectors, vector)
	return nil
}

func (idx *FlatIndex) Search(query []float64, k int) ([]IndexHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hits := idx.ranker.Rank(query, idx.vectors, k)
	out := make([]IndexHit, len(hits))
	for i, h := range hits {
		out[i] = IndexHit{ID: idx.ids[h.Index], Score: h.Score}
	}
	return out, nil
}

func (idx *FlatIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// ====== HNSW 索引 ======

// HNSWConfig HNSW 参数。
type HNSWConfig struct {
	M              int     `yaml:"m" json:"m"`                             // 每层最大连接数
	EfConstruction int     `yaml:"ef_construction" json:"ef_construction"` // 构建时搜索宽度
	EfSearch       int     `yaml:"ef_search" json:"ef_search"`             // 搜索时宽度
	MaxLevel       int     `yaml:"max_level" json:"max_level"`             // 最大层数
	Seed           int64   `yaml:"seed" json:"seed"`                       // 层数随机源种子，固定以保证可复现
	LevelFactor    float64 `yaml:"-" json:"-"`
}

// DefaultHNSWConfig 返回默认参数。
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:              16,
		EfConstruction: 200,
		EfSearch:       100,
		MaxLevel:       16,
		Seed:           1,
		LevelFactor:    1.0 / math.Log(2.0),
	}
}

// HNSWIndex 分层可导航小世界图索引。
type HNSWIndex struct {
	config     HNSWConfig
	vectors    map[string][]float64
	graph      map[string]map[int][]string // id -> level -> neighbors
	entryPoint string
	maxLevel   int
	rng        *rand.Rand
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHNSWIndex 创建 HNSW 索引。
func NewHNSWIndex(config HNSWConfig, logger *zap.Logger) *HNSWIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.M <= 0 {
		config = DefaultHNSWConfig()
	}
	if config.LevelFactor == 0 {
		config.LevelFactor = 1.0 / math.Log(2.0)
	}
	return &HNSWIndex{
		config:  config,
		vectors: make(map[string][]float64),
		graph:   make(map[string]map[int][]string),
		rng:     rand.New(rand.NewSource(config.Seed)),
		logger:  logger.With(zap.String("component", "hnsw_index")),
	}
}

func (idx *HNSWIndex) Build(ids []string, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("similarity: ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	idx.logger.Info("building hnsw index",
		zap.Int("vectors", len(vectors)),
		zap.Int("m", idx.config.M),
		zap.Int("ef_construction", idx.config.EfConstruction))
	for i := range ids {
		if err := idx.Add(ids[i], vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *HNSWIndex) Add(id string, vector []float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[id]; exists {
		return fmt.Errorf("similarity: vector %s already indexed", id)
	}
	idx.vectors[id] = vector

	level := idx.randomLevel()
	if level > idx.maxLevel {
		idx.maxLevel = level
	}
	idx.graph[id] = make(map[int][]string)
	for l := 0; l <= level; l++ {
		idx.graph[id][l] = nil
	}

	if idx.entryPoint == "" {
		idx.entryPoint = id
		return nil
	}
	idx.insert(id, vector, level)
	return nil
}

func (idx *HNSWIndex) Search(query []float64, k int) ([]IndexHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	ep := idx.entryPoint
	for level := idx.maxLevel; level > 0; level-- {
		ep = idx.searchLayer(query, ep, 1, level)[0]
	}
	candidates := idx.searchLayer(query, ep, max(idx.config.EfSearch, k), 0)

	hits := make([]IndexHit, 0, k)
	for i := 0; i < len(candidates) && i < k; i++ {
		id := candidates[i]
		hits = append(hits, IndexHit{ID: id, Score: 1.0 - idx.distance(query, idx.vectors[id])})
	}
	return hits, nil
}

func (idx *HNSWIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func (idx *HNSWIndex) insert(id string, vector []float64, level int) {
	ep := idx.entryPoint
	for lc := idx.maxLevel; lc > level; lc-- {
		ep = idx.searchLayer(vector, ep, 1, lc)[0]
	}

	for lc := min(level, idx.maxLevel); lc >= 0; lc-- {
		candidates := idx.searchLayer(vector, ep, idx.config.EfConstruction, lc)

		m := idx.config.M
		if lc == 0 {
			m = idx.config.M * 2
		}
		neighbors := idx.selectNeighbors(vector, candidates, m)

		idx.graph[id][lc] = neighbors
		for _, nid := range neighbors {
			idx.graph[nid][lc] = append(idx.graph[nid][lc], id)
			if len(idx.graph[nid][lc]) > m {
				idx.graph[nid][lc] = idx.selectNeighbors(idx.vectors[nid], idx.graph[nid][lc], m)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}
}

func (idx *HNSWIndex) searchLayer(query []float64, ep string, ef, level int) []string {
	visited := map[string]bool{ep: true}
	dist := idx.distance(query, idx.vectors[ep])

	candidates := &minHeap{{id: ep, dist: dist}}
	result := &maxHeap{{id: ep, dist: dist}}
	heap.Init(candidates)
	heap.Init(result)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(hnswItem)
		if c.dist > (*result)[0].dist && result.Len() >= ef {
			break
		}
		neighbors := idx.graph[c.id][level]
		for _, nid := range neighbors {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			d := idx.distance(query, idx.vectors[nid])
			if d < (*result)[0].dist || result.Len() < ef {
				heap.Push(candidates, hnswItem{id: nid, dist: d})
				heap.Push(result, hnswItem{id: nid, dist: d})
				if result.Len() > ef {
					heap.Pop(result)
				}
			}
		}
	}

	out := make([]string, result.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(result).(hnswItem).id
	}
	return out
}

func (idx *HNSWIndex) selectNeighbors(ref []float64, candidates []string, m int) []string {
	if len(candidates) <= m {
		return candidates
	}
	type cand struct {
		id   string
		dist float64
	}
	cands := make([]cand, len(candidates))
	for i, cid := range candidates {
		cands[i] = cand{id: cid, dist: idx.distance(ref, idx.vectors[cid])}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	out := make([]string, m)
	for i := 0; i < m; i++ {
		out[i] = cands[i].id
	}
	return out
}

func (idx *HNSWIndex) randomLevel() int {
	level := 0
	for idx.rng.Float64() < 0.5 && level < idx.config.MaxLevel {
		level++
	}
	return level
}

// distance 余弦距离（1 - 相似度）。
func (idx *HNSWIndex) distance(a, b []float64) float64 {
	return 1.0 - Cosine(a, b)
}

// ====== 堆 ======

type hnswItem struct {
	id   string
	dist float64
}

type minHeap []hnswItem

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(hnswItem)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type maxHeap []hnswItem

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(hnswItem)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
