package retrieval

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/lexical"
	"github.com/BaSui01/retrievalflow/store"
)

// GraphConfig 图谱检索配置。
type GraphConfig struct {
	// RelationFanout 单个实体允许解析的一跳关系上限，防止无界扩张。
	RelationFanout int `yaml:"relation_fanout" json:"relation_fanout"`
}

// DefaultGraphConfig 返回图谱检索默认配置。
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{RelationFanout: 8}
}

// GraphRetriever 把查询扩展为相关实体与一跳关系。
// 检索链分两层：先在实体嵌入上做向量检索，向量层失败或为空时
// 退化为实体标签上的词法检索。使用哪一层会记录日志，便于观测退化路径。
type GraphRetriever struct {
	config   GraphConfig
	vector   *VectorRetriever
	entities store.EntityStore
	logger   *zap.Logger

	mu     sync.RWMutex
	labels *lexical.Index
}

// NewGraphRetriever 创建图谱检索器。labels 是实体标签上的词法索引，
// 由引擎在 Refresh 时构建并注入。
func NewGraphRetriever(config GraphConfig, vector *VectorRetriever, entities store.EntityStore, labels *lexical.Index, logger *zap.Logger) *GraphRetriever {
	if config.RelationFanout <= 0 {
		config.RelationFanout = DefaultGraphConfig().RelationFanout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphRetriever{
		config:   config,
		vector:   vector,
		entities: entities,
		labels:   labels,
		logger:   logger.With(zap.String("component", "graph_retriever")),
	}
}

// SetLabelIndex 替换实体标签词法索引，Refresh 重建索引后调用。
func (r *GraphRetriever) SetLabelIndex(labels *lexical.Index) {
	r.mu.Lock()
	r.labels = labels
	r.mu.Unlock()
}

// Expand 返回与查询相关的实体候选，每个候选附带受 RelationFanout
// 约束的一跳关系。两层检索都失败时返回空结果。
func (r *GraphRetriever) Expand(ctx context.Context, query string, topK int) []Candidate {
	if topK <= 0 || r.entities == nil {
		return nil
	}

	candidates := r.vector.SearchEntities(ctx, query, r.entities, topK)
	if len(candidates) > 0 {
		r.logger.Debug("graph expansion via vector tier", zap.Int("entities", len(candidates)))
	} else {
		candidates = r.lexicalTier(ctx, query, topK)
		if len(candidates) == 0 {
			return nil
		}
		r.logger.Info("graph expansion fell back to lexical tier", zap.Int("entities", len(candidates)))
	}

	for i := range candidates {
		candidates[i].Sources = []Source{SourceGraph}
		candidates[i].Relations = r.relationsFor(ctx, candidates[i].ID)
	}
	return candidates
}

func (r *GraphRetriever) lexicalTier(ctx context.Context, query string, topK int) []Candidate {
	r.mu.RLock()
	labels := r.labels
	r.mu.RUnlock()
	if labels == nil {
		return nil
	}
	hits, err := labels.Search(ctx, query, topK)
	if err != nil {
		r.logger.Warn("lexical tier failed, graph signal empty", zap.Error(err))
		return nil
	}
	candidates := make([]Candidate, 0, len(hits))
	for rank, hit := range hits {
		entity, err := r.entities.GetEntity(ctx, hit.ID)
		if err != nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:        entity.ID,
			Kind:      KindEntity,
			Text:      entity.Label,
			Embedding: entity.Embedding,
			RawScore:  hit.Score,
			Rank:      rank,
		})
	}
	return candidates
}

func (r *GraphRetriever) relationsFor(ctx context.Context, entityID string) []store.Relation {
	relations, err := r.entities.RelationsFor(ctx, entityID, r.config.RelationFanout)
	if err != nil {
		r.logger.Debug("relation lookup failed", zap.String("entity", entityID), zap.Error(err))
		return nil
	}
	return relations
}
