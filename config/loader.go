// =============================================================================
// 📦 RetrievalFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RETRIEVALFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/ingest"
	"github.com/BaSui01/retrievalflow/internal/cache"
	"github.com/BaSui01/retrievalflow/internal/server"
	"github.com/BaSui01/retrievalflow/internal/telemetry"
	"github.com/BaSui01/retrievalflow/retrieval"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 RetrievalFlow 的完整配置结构
type Config struct {
	// Embedding 嵌入提供方配置
	Embedding embedding.HTTPConfig `yaml:"embedding"`

	// Cache 嵌入缓存配置
	Cache embedding.CacheConfig `yaml:"cache"`

	// Snapshot 缓存快照（Redis）配置，Addr 为空时关闭
	Snapshot embedding.RedisSnapshotConfig `yaml:"snapshot"`

	// RateLimit 嵌入请求限流配置
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Retrieval 检索引擎配置
	Retrieval retrieval.Config `yaml:"retrieval"`

	// Store 存储配置
	Store StoreConfig `yaml:"store"`

	// Tokenizer token 计数配置
	Tokenizer TokenizerConfig `yaml:"tokenizer"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics"`

	// Server HTTP 服务配置（serve 命令）
	Server server.Config `yaml:"server"`

	// ResultCache 检索结果缓存（Redis）配置，Addr 为空时关闭
	ResultCache cache.Config `yaml:"result_cache"`

	// Telemetry 分布式追踪配置
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Ingest 装载时的嵌入回填配置
	Ingest ingest.Config `yaml:"ingest"`
}

// RateLimitConfig 嵌入请求限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled"`
	// 每秒请求数
	RPS float64 `yaml:"rps"`
	// 突发额度
	Burst int `yaml:"burst"`
}

// StoreConfig 存储配置
type StoreConfig struct {
	// 驱动: memory, sqlite
	Driver string `yaml:"driver"`
	// SQLite 文件路径
	Path string `yaml:"path"`
}

// TokenizerConfig token 计数配置
type TokenizerConfig struct {
	// 编码名: o200k_base, cl100k_base；空值使用估算器
	Encoding string `yaml:"encoding"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled"`
	// 指标命名空间
	Namespace string `yaml:"namespace"`
	// 暴露端口
	Port int `yaml:"port"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RETRIEVALFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置。
// 环境变量键由前缀与各级 yaml 标签大写拼接而成，
// 如 RETRIEVALFLOW_EMBEDDING_BASE_URL。
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := prefix + "_" + strings.ToUpper(yamlTag)

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Retrieval.TopKVector <= 0 {
		errs = append(errs, "retrieval.top_k_vector must be positive")
	}
	if c.Retrieval.TopKRerank <= 0 {
		errs = append(errs, "retrieval.top_k_rerank must be positive")
	}
	if c.Retrieval.TokenBudget <= 0 {
		errs = append(errs, "retrieval.token_budget must be positive")
	}
	switch c.Retrieval.Index {
	case "", "flat", "hnsw":
	default:
		errs = append(errs, fmt.Sprintf("unknown retrieval index %q", c.Retrieval.Index))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, "cache.capacity must be positive")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		errs = append(errs, "store.path is required for sqlite driver")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		errs = append(errs, "rate_limit.rps must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
