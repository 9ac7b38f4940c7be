package retrieval

import "github.com/BaSui01/retrievalflow/store"

// Source 标识候选的来源信号。
type Source string

const (
	SourceVector  Source = "vector"
	SourceLexical Source = "lexical"
	SourceGraph   Source = "graph"
)

// Kind 标识候选引用的对象类型。
type Kind string

const (
	KindChunk  Kind = "chunk"
	KindEntity Kind = "entity"
)

// Candidate 单次查询内的瞬态打分记录，引用一个 chunk 或实体。
// RawScore 是信号内部的原始分数，不同信号之间不可比；
// Score 是信号内归一化后的分数，归并与重排序基于它。
type Candidate struct {
	ID         string   `json:"id"`
	Kind       Kind     `json:"kind"`
	Text       string   `json:"text"`
	DocumentID string   `json:"document_id,omitempty"`
	Embedding  []float64 `json:"-"`

	Sources  []Source `json:"sources"`
	RawScore float64  `json:"raw_score"`
	Score    float64  `json:"score"`
	Rank     int      `json:"rank"`

	// RerankScore 重排序模型给出的分数；未重排序时为 0 且 Reranked 为 false。
	RerankScore float64 `json:"rerank_score,omitempty"`
	Reranked    bool    `json:"reranked,omitempty"`

	// Relations 图谱信号附带的一跳关系。
	Relations []store.Relation `json:"relations,omitempty"`
}

// HasSource 判断候选是否来自指定信号。
func (c *Candidate) HasSource(s Source) bool {
	for _, src := range c.Sources {
		if src == s {
			return true
		}
	}
	return false
}
