package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/retrieval"
)

// ErrCacheMiss 表示键不存在。
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断错误是否为缓存未命中。
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Config 结果缓存配置。
type Config struct {
	// Redis 地址，为空时关闭结果缓存
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 结果过期时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 键前缀，隔离多实例共用一个 Redis 的场景
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultConfig 返回默认结果缓存配置。
func DefaultConfig() Config {
	return Config{
		TTL:       5 * time.Minute,
		KeyPrefix: "retrievalflow:result",
	}
}

// Manager 检索结果缓存管理器。
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewManager 创建结果缓存管理器并验证连接。
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Addr == "" {
		return nil, fmt.Errorf("cache: redis addr is required")
	}
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "result_cache")),
	}
	m.logger.Info("result cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL))
	return m, nil
}

// resultKey 由查询与生效参数派生缓存键。
// 参数参与哈希，保证不同 top-k/预算不会串读。
func (m *Manager) resultKey(query string, opts retrieval.Options) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d|%d",
		query, opts.TopKVector, opts.TopKRerank, opts.TokenBudget))
	return m.config.KeyPrefix + ":" + hex.EncodeToString(h[:16])
}

// GetResult 返回缓存的检索结果，未命中时返回 ErrCacheMiss。
func (m *Manager) GetResult(ctx context.Context, query string, opts retrieval.Options) (*retrieval.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("cache: manager is closed")
	}

	key := m.resultKey(query, opts)
	val, err := m.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get result: %w", err)
	}

	var res retrieval.Result
	if err := json.Unmarshal(val, &res); err != nil {
		// 损坏的条目当作未命中处理，等待覆盖。
		m.logger.Warn("corrupt cached result", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}
	return &res, nil
}

// PutResult 写入检索结果，按配置的 TTL 过期。
func (m *Manager) PutResult(ctx context.Context, query string, opts retrieval.Options, res *retrieval.Result) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: marshal result: %w", err)
	}
	key := m.resultKey(query, opts)
	if err := m.redis.Set(ctx, key, data, m.config.TTL).Err(); err != nil {
		return fmt.Errorf("cache: put result: %w", err)
	}
	return nil
}

// Invalidate 清空当前前缀下的全部缓存结果。
// 语料刷新后调用，防止返回陈旧上下文。
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}

	var cursor uint64
	pattern := m.config.KeyPrefix + ":*"
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return fmt.Errorf("cache: scan for invalidate: %w", err)
		}
		if len(keys) > 0 {
			if err := m.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: delete results: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping 检查 Redis 连接。
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("cache: manager is closed")
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭底层连接。
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing result cache")
	return m.redis.Close()
}
