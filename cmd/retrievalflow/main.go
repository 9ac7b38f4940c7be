// =============================================================================
// RetrievalFlow 主入口
// =============================================================================
// 命令行工具，包含检索服务、语料装载、查询与缓存快照管理
//
// 使用方法:
//
//	retrievalflow serve --config config.yaml             # 启动检索 HTTP 服务
//	retrievalflow query "question" --config config.yaml  # 执行一次检索
//	retrievalflow load --chunks chunks.jsonl             # 装载语料
//	retrievalflow snapshot save                          # 保存缓存快照
//	retrievalflow snapshot restore                       # 恢复缓存快照
//	retrievalflow version                                # 显示版本信息
// =============================================================================
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/retrievalflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "load":
		runLoad(os.Args[2:])
	case "snapshot":
		runSnapshot(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 📝 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("RetrievalFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`RetrievalFlow - Hybrid Retrieval Engine

Usage:
  retrievalflow <command> [options]

Commands:
  serve     Run the retrieval HTTP service
  query     Run a single retrieval against the configured corpus
  load      Load pre-chunked corpus files into the store
  snapshot  Save or restore the embedding cache snapshot (Redis)
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --addr <addr>     Listen address (overrides server.addr)

Options for 'query':
  --config <path>   Path to configuration file (YAML)
  --top-k <n>       Vector candidates per signal
  --budget <n>      Token budget for assembled context

Options for 'load':
  --config <path>     Path to configuration file (YAML)
  --chunks <path>     JSONL file of chunks
  --entities <path>   JSONL file of entities
  --relations <path>  JSONL file of relations
  --embed             Backfill missing embeddings via the embedding provider

Snapshot subcommands:
  snapshot save      Persist current cache entries to Redis
  snapshot restore   Seed the cache from a Redis snapshot`)
}
