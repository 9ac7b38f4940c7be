package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SnapshotStore 键→向量映射的外部持久化。
// 跨进程重启保留缓存是可选能力；装载和保存都是显式操作，
// 缓存自身从不隐式触发。
type SnapshotStore interface {
	// Save 覆盖写入全部条目。
	Save(ctx context.Context, entries map[string][]float64) error

	// Load 读出全部条目；不存在快照时返回空映射。
	Load(ctx context.Context) (map[string][]float64, error)
}

// RedisSnapshotConfig Redis 快照配置。
type RedisSnapshotConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Key      string        `yaml:"key" json:"key"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultRedisSnapshotConfig 返回默认配置。
func DefaultRedisSnapshotConfig() RedisSnapshotConfig {
	return RedisSnapshotConfig{
		Addr:    "localhost:6379",
		Key:     "retrievalflow:embedding_cache",
		Timeout: 5 * time.Second,
	}
}

// RedisSnapshotStore 把键→向量映射存为一个 Redis hash。
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)

// NewRedisSnapshotStore 创建 Redis 快照存储并验证连接。
func NewRedisSnapshotStore(cfg RedisSnapshotConfig, logger *zap.Logger) (*RedisSnapshotStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultRedisSnapshotConfig().Key
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisSnapshotConfig().Timeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisSnapshotStore{
		client: client,
		key:    cfg.Key,
		logger: logger.With(zap.String("component", "embedding_snapshot")),
	}, nil
}

// Save 覆盖写入全部条目。
func (s *RedisSnapshotStore) Save(ctx context.Context, entries map[string][]float64) error {
	fields := make(map[string]any, len(entries))
	for key, vec := range entries {
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("marshal vector for %s: %w", key, err)
		}
		fields[key] = data
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, s.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Info("embedding snapshot saved", zap.Int("entries", len(entries)))
	return nil
}

// Load 读出全部条目。
func (s *RedisSnapshotStore) Load(ctx context.Context) (map[string][]float64, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	entries := make(map[string][]float64, len(raw))
	for key, data := range raw {
		var vec []float64
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			return nil, fmt.Errorf("unmarshal vector for %s: %w", key, err)
		}
		entries[key] = vec
	}

	s.logger.Info("embedding snapshot loaded", zap.Int("entries", len(entries)))
	return entries, nil
}

// Close 关闭底层连接。
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
