package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore 进程内 chunk/实体存储。
// 写入仅用于装载语料；装载完成后对检索层是只读的。
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    map[string]Chunk
	entities  map[string]Entity
	relations []Relation
	logger    *zap.Logger
}

var (
	_ ChunkStore  = (*MemoryStore)(nil)
	_ EntityStore = (*MemoryStore)(nil)
)

// NewMemoryStore 创建内存存储。
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		chunks:   make(map[string]Chunk),
		entities: make(map[string]Entity),
		logger:   logger.With(zap.String("component", "memory_store")),
	}
}

// AddChunks 装载 chunk。
func (s *MemoryStore) AddChunks(chunks ...Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	s.logger.Debug("chunks loaded", zap.Int("count", len(chunks)), zap.Int("total", len(s.chunks)))
}

// AddEntities 装载实体。
func (s *MemoryStore) AddEntities(entities ...Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e.ID] = e
	}
}

// AddRelations 装载关系。
func (s *MemoryStore) AddRelations(relations ...Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, relations...)
}

// GetChunk 按 ID 返回 chunk。
func (s *MemoryStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// ListChunks 返回全部 chunk，按 ID 升序。
func (s *MemoryStore) ListChunks(ctx context.Context) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ChunksByDocument 返回某文档的全部 chunk，按 Ordinal 升序。
func (s *MemoryStore) ChunksByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// CountChunks 返回 chunk 总数。
func (s *MemoryStore) CountChunks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// GetEntity 按 ID 返回实体。
func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// ListEntities 返回全部实体，按 ID 升序。
func (s *MemoryStore) ListEntities(ctx context.Context) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RelationsFor 返回与实体相连的关系，按置信度降序。
func (s *MemoryStore) RelationsFor(ctx context.Context, entityID string, limit int) ([]Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Relation
	for _, r := range s.relations {
		if r.SubjectID == entityID || r.ObjectID == entityID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
