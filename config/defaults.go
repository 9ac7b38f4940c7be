// =============================================================================
// 📦 RetrievalFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/ingest"
	"github.com/BaSui01/retrievalflow/internal/cache"
	"github.com/BaSui01/retrievalflow/internal/server"
	"github.com/BaSui01/retrievalflow/internal/telemetry"
	"github.com/BaSui01/retrievalflow/retrieval"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Embedding: DefaultEmbeddingConfig(),
		Cache:     embedding.DefaultCacheConfig(),
		// Addr 为空表示关闭快照；启用时其余字段从
		// embedding.DefaultRedisSnapshotConfig 补齐。
		Snapshot:  embedding.RedisSnapshotConfig{},
		RateLimit: DefaultRateLimitConfig(),
		Retrieval: retrieval.DefaultConfig(),
		Store:     DefaultStoreConfig(),
		Tokenizer: DefaultTokenizerConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Server:    server.DefaultConfig(),
		// Addr 为空表示关闭结果缓存。
		ResultCache: cache.Config{TTL: cache.DefaultConfig().TTL, KeyPrefix: cache.DefaultConfig().KeyPrefix},
		Telemetry:   telemetry.DefaultConfig(),
		Ingest:      ingest.DefaultConfig(),
	}
}

// DefaultEmbeddingConfig 返回默认嵌入提供方配置
func DefaultEmbeddingConfig() embedding.HTTPConfig {
	return embedding.HTTPConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultRateLimitConfig 返回默认限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: false,
		RPS:     10,
		Burst:   20,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: "memory",
	}
}

// DefaultTokenizerConfig 返回默认 token 计数配置
func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		Encoding: "cl100k_base",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "retrievalflow",
		Port:      9091,
	}
}
