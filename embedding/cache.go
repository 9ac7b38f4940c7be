package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/BaSui01/retrievalflow/internal/metrics"
)

// CacheConfig 缓存配置。
type CacheConfig struct {
	// Capacity 最大条目数，超限按 LRU 淘汰。
	Capacity int `yaml:"capacity" json:"capacity"`
	// ComputeTimeout 单次嵌入计算的超时。计算归缓存所有，
	// 该超时独立于任何调用方的 context。
	ComputeTimeout time.Duration `yaml:"compute_timeout" json:"compute_timeout"`
}

// DefaultCacheConfig 返回默认缓存配置。
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:       4096,
		ComputeTimeout: 60 * time.Second,
	}
}

// CacheStats 缓存只读统计，供运维观测。
type CacheStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// cacheEntry 单条缓存记录。
type cacheEntry struct {
	key        string
	vector     []float64
	insertedAt time.Time
	lastAccess time.Time
}

// Cache 内容寻址的嵌入缓存。
// 同一未缓存键的并发请求通过 singleflight 合并为一次计算；
// 失败传播给全部等待者且不写入缓存；调用方取消只放弃等待，
// 不中断计算本身。
type Cache struct {
	provider Provider
	config   CacheConfig

	mu      sync.Mutex
	entries map[string]*list.Element // key -> *cacheEntry element
	lru     *list.List               // front = most recently used

	flight singleflight.Group

	hits      uint64
	misses    uint64
	evictions uint64

	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewCache 创建嵌入缓存。collector 可以为 nil。
func NewCache(provider Provider, config CacheConfig, logger *zap.Logger, collector *metrics.Collector) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Capacity <= 0 {
		config.Capacity = DefaultCacheConfig().Capacity
	}
	if config.ComputeTimeout <= 0 {
		config.ComputeTimeout = DefaultCacheConfig().ComputeTimeout
	}
	return &Cache{
		provider: provider,
		config:   config,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		logger:   logger.With(zap.String("component", "embedding_cache")),
		metrics:  collector,
	}
}

// Normalize 返回用于缓存寻址的规范化文本：
// NFKC 归一 + 空白折叠为单个空格 + 小写 + 去首尾空白。
// 语义相同但排版不同的输入共享同一条缓存。
func Normalize(text string) string {
	normalized := norm.NFKC.String(text)
	var b strings.Builder
	b.Grow(len(normalized))
	inSpace := false
	for _, r := range normalized {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Key 返回规范化文本的 SHA-256 十六进制键。
func Key(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute 返回文本的嵌入。
// 命中时更新访问时间并直接返回；未命中时恰好一个调用方触发计算，
// 其余阻塞等待同一结果。返回的向量为共享只读数据，调用方不得修改。
func (c *Cache) GetOrCompute(ctx context.Context, text string) ([]float64, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, ErrEmptyText
	}
	sum := sha256.Sum256([]byte(normalized))
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.lastAccess = time.Now()
		c.lru.MoveToFront(el)
		c.hits++
		vec := entry.vector
		c.mu.Unlock()
		c.metrics.RecordCacheHit()
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()
	c.metrics.RecordCacheMiss()

	// DoChan 而非 Do：等待者可以随调用方 context 放弃，
	// 计算本身继续进行并服务其余等待者。
	ch := c.flight.DoChan(key, func() (any, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.ComputeTimeout)
		defer cancel()

		vec, err := c.provider.EmbedQuery(computeCtx, normalized)
		if err != nil {
			// 失败不入缓存，下次查找重新计算。
			return nil, err
		}
		c.store(key, vec)
		return vec, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("embedding cache compute: %w", res.Err)
		}
		return res.Val.([]float64), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// store 写入结果并在超容量时同步淘汰最久未用的条目。
// 在途计算不在 LRU 表中，不会被淘汰。
func (c *Cache) store(key string, vector []float64) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.vector = vector
		entry.lastAccess = now
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&cacheEntry{
		key:        key,
		vector:     vector,
		insertedAt: now,
		lastAccess: now,
	})
	c.entries[key] = el

	for len(c.entries) > c.config.Capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.lru.Remove(oldest)
		delete(c.entries, evicted.key)
		c.evictions++
		c.metrics.RecordCacheEviction()
		c.logger.Debug("cache entry evicted", zap.String("key", evicted.key[:12]))
	}
	c.metrics.SetCacheEntries(len(c.entries))
}

// Stats 返回当前统计快照。
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Capacity:  c.config.Capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Len 返回当前条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot 导出当前键→向量映射到外部存储。
func (c *Cache) Snapshot(ctx context.Context, store SnapshotStore) error {
	c.mu.Lock()
	entries := make(map[string][]float64, len(c.entries))
	for key, el := range c.entries {
		entries[key] = el.Value.(*cacheEntry).vector
	}
	c.mu.Unlock()

	return store.Save(ctx, entries)
}

// Restore 从外部存储装载条目，超出容量的部分按装载顺序丢弃。
func (c *Cache) Restore(ctx context.Context, store SnapshotStore) error {
	entries, err := store.Load(ctx)
	if err != nil {
		return err
	}
	for key, vec := range entries {
		c.store(key, vec)
	}
	c.logger.Info("cache restored from snapshot", zap.Int("entries", len(entries)))
	return nil
}
