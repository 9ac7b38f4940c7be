package store

import (
	"context"
	"errors"
)

// ErrNotFound 表示按 ID 查找的记录不存在。
var ErrNotFound = errors.New("store: record not found")

// ChunkStore 是 chunk 数据的只读访问接口。
// 实现必须支持按 ID 查找和全量批量读取；批量读取用于向量检索的候选集。
type ChunkStore interface {
	// GetChunk 按 ID 返回 chunk；不存在时返回 ErrNotFound。
	GetChunk(ctx context.Context, id string) (*Chunk, error)

	// ListChunks 返回全部 chunk。顺序必须稳定（按 ID 升序），
	// 检索结果的确定性依赖该顺序。
	ListChunks(ctx context.Context) ([]Chunk, error)

	// ChunksByDocument 返回某文档的全部 chunk，按 Ordinal 升序。
	ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error)

	// CountChunks 返回 chunk 总数。
	CountChunks(ctx context.Context) (int, error)
}

// EntityStore 是实体/关系数据的只读访问接口。
type EntityStore interface {
	// GetEntity 按 ID 返回实体；不存在时返回 ErrNotFound。
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// ListEntities 返回全部实体，按 ID 升序。
	ListEntities(ctx context.Context) ([]Entity, error)

	// RelationsFor 返回以 entityID 为主语或宾语的关系，
	// 按置信度降序，最多 limit 条。limit <= 0 表示不限制。
	RelationsFor(ctx context.Context, entityID string, limit int) ([]Relation, error)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
