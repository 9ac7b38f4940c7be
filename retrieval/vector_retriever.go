package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/similarity"
	"github.com/BaSui01/retrievalflow/store"
)

// VectorRetriever 组合嵌入缓存与相似度引擎，从 chunk 或实体存储中
// 产出带 vector 标签的候选。任一环节失败都返回空结果而不报错，
// 空贡献由归并层吸收。
type VectorRetriever struct {
	cache  *embedding.Cache
	ranker similarity.Ranker
	logger *zap.Logger
}

// NewVectorRetriever 创建向量检索器。logger 为 nil 时使用 Nop。
func NewVectorRetriever(cache *embedding.Cache, ranker similarity.Ranker, logger *zap.Logger) *VectorRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		cache:  cache,
		ranker: ranker,
		logger: logger.With(zap.String("component", "vector_retriever")),
	}
}

// SearchChunks 在 chunk 存储上做向量检索。
func (r *VectorRetriever) SearchChunks(ctx context.Context, query string, chunks store.ChunkStore, topK int) []Candidate {
	if topK <= 0 || chunks == nil {
		return nil
	}
	queryVec, err := r.cache.GetOrCompute(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, vector signal empty", zap.Error(err))
		return nil
	}

	all, err := chunks.ListChunks(ctx)
	if err != nil {
		r.logger.Warn("chunk store unavailable, vector signal empty", zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(all))
	vectors := make([][]float64, 0, len(all))
	byID := make(map[string]*store.Chunk, len(all))
	for i := range all {
		c := &all[i]
		if len(c.Embedding) == 0 {
			continue
		}
		ids = append(ids, c.ID)
		vectors = append(vectors, c.Embedding)
		byID[c.ID] = c
	}
	if len(ids) == 0 {
		return nil
	}

	hits := r.ranker.Rank(queryVec, vectors, topK)
	candidates := make([]Candidate, 0, len(hits))
	for rank, hit := range hits {
		c := byID[ids[hit.Index]]
		candidates = append(candidates, Candidate{
			ID:         c.ID,
			Kind:       KindChunk,
			Text:       c.Text,
			DocumentID: c.DocumentID,
			Embedding:  c.Embedding,
			Sources:    []Source{SourceVector},
			RawScore:   hit.Score,
			Rank:       rank,
		})
	}
	return candidates
}

// SearchIndex 在预构建的向量索引上检索 chunk，候选正文从存储回查。
// 索引由引擎在 Refresh 时构建，flat 与 hnsw 走同一条路径。
func (r *VectorRetriever) SearchIndex(ctx context.Context, query string, index similarity.VectorIndex, chunks store.ChunkStore, topK int) []Candidate {
	if topK <= 0 || index == nil || chunks == nil {
		return nil
	}
	queryVec, err := r.cache.GetOrCompute(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, vector signal empty", zap.Error(err))
		return nil
	}

	hits, err := index.Search(queryVec, topK)
	if err != nil {
		r.logger.Warn("vector index search failed, vector signal empty", zap.Error(err))
		return nil
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		c, err := chunks.GetChunk(ctx, hit.ID)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         c.ID,
			Kind:       KindChunk,
			Text:       c.Text,
			DocumentID: c.DocumentID,
			Embedding:  c.Embedding,
			Sources:    []Source{SourceVector},
			RawScore:   hit.Score,
			Rank:       len(candidates),
		})
	}
	return candidates
}

// SearchEntities 在实体存储上做向量检索，供图谱检索器的第一层使用。
func (r *VectorRetriever) SearchEntities(ctx context.Context, query string, entities store.EntityStore, topK int) []Candidate {
	if topK <= 0 || entities == nil {
		return nil
	}
	queryVec, err := r.cache.GetOrCompute(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, entity vector tier empty", zap.Error(err))
		return nil
	}

	all, err := entities.ListEntities(ctx)
	if err != nil {
		r.logger.Warn("entity store unavailable, entity vector tier empty", zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(all))
	vectors := make([][]float64, 0, len(all))
	byID := make(map[string]*store.Entity, len(all))
	for i := range all {
		e := &all[i]
		if len(e.Embedding) == 0 {
			continue
		}
		ids = append(ids, e.ID)
		vectors = append(vectors, e.Embedding)
		byID[e.ID] = e
	}
	if len(ids) == 0 {
		return nil
	}

	hits := r.ranker.Rank(queryVec, vectors, topK)
	candidates := make([]Candidate, 0, len(hits))
	for rank, hit := range hits {
		e := byID[ids[hit.Index]]
		candidates = append(candidates, Candidate{
			ID:        e.ID,
			Kind:      KindEntity,
			Text:      e.Label,
			Embedding: e.Embedding,
			Sources:   []Source{SourceVector},
			RawScore:  hit.Score,
			Rank:      rank,
		})
	}
	return candidates
}
