package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLStore 基于 GORM 的持久化存储。
// 参考实现使用 SQLite；任何 GORM 支持的数据库都可以通过 NewSQLStoreWithDB 接入。
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var (
	_ ChunkStore  = (*SQLStore)(nil)
	_ EntityStore = (*SQLStore)(nil)
)

// OpenSQLite 打开（或创建）SQLite 数据库并完成表迁移。
// path 为 ":memory:" 时使用纯内存数据库。
func OpenSQLite(path string, logger *zap.Logger) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStoreWithDB(db, logger)
}

// NewSQLStoreWithDB 在已有 *gorm.DB 上创建存储并自动迁移表结构。
func NewSQLStoreWithDB(db *gorm.DB, logger *zap.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Chunk{}, &Entity{}, &Relation{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "sql_store")),
	}, nil
}

// SaveChunks 写入 chunk（装载阶段使用）。
func (s *SQLStore) SaveChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Save(&chunks).Error; err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	s.logger.Debug("chunks saved", zap.Int("count", len(chunks)))
	return nil
}

// SaveEntities 写入实体。
func (s *SQLStore) SaveEntities(ctx context.Context, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Save(&entities).Error; err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	return nil
}

// SaveRelations 写入关系。
func (s *SQLStore) SaveRelations(ctx context.Context, relations []Relation) error {
	if len(relations) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&relations).Error; err != nil {
		return fmt.Errorf("save relations: %w", err)
	}
	return nil
}

// GetChunk 按 ID 返回 chunk。
func (s *SQLStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	var c Chunk
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return &c, nil
}

// ListChunks 返回全部 chunk，按 ID 升序。
func (s *SQLStore) ListChunks(ctx context.Context) ([]Chunk, error) {
	var out []Chunk
	if err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return out, nil
}

// ChunksByDocument 返回某文档的全部 chunk，按 Ordinal 升序。
func (s *SQLStore) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	var out []Chunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("chunks by document %s: %w", documentID, err)
	}
	return out, nil
}

// CountChunks 返回 chunk 总数。
func (s *SQLStore) CountChunks(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Chunk{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return int(count), nil
}

// GetEntity 按 ID 返回实体。
func (s *SQLStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %s: %w", id, err)
	}
	return &e, nil
}

// ListEntities 返回全部实体，按 ID 升序。
func (s *SQLStore) ListEntities(ctx context.Context) ([]Entity, error) {
	var out []Entity
	if err := s.db.WithContext(ctx).Order("id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}

// RelationsFor 返回与实体相连的关系，按置信度降序。
func (s *SQLStore) RelationsFor(ctx context.Context, entityID string, limit int) ([]Relation, error) {
	q := s.db.WithContext(ctx).
		Where("subject_id = ? OR object_id = ?", entityID, entityID).
		Order("confidence desc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Relation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("relations for %s: %w", entityID, err)
	}
	return out, nil
}
