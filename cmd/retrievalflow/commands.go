package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/config"
	"github.com/BaSui01/retrievalflow/embedding"
	"github.com/BaSui01/retrievalflow/ingest"
	"github.com/BaSui01/retrievalflow/internal/metrics"
	"github.com/BaSui01/retrievalflow/retrieval"
	"github.com/BaSui01/retrievalflow/store"
	"github.com/BaSui01/retrievalflow/tokenizer"
)

// =============================================================================
// 🔧 引擎装配
// =============================================================================

func buildProvider(cfg *config.Config) embedding.Provider {
	var provider embedding.Provider = embedding.NewHTTPProvider(cfg.Embedding)
	if cfg.RateLimit.Enabled {
		provider = embedding.NewRateLimited(provider, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	return provider
}

func buildEngine(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*retrieval.Engine, error) {
	provider := buildProvider(cfg)

	chunks, entities, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	var counter tokenizer.Tokenizer
	if cfg.Tokenizer.Encoding == "" {
		counter = tokenizer.NewEstimator()
	} else {
		counter = tokenizer.NewFallback(tokenizer.NewTiktoken(cfg.Tokenizer.Encoding))
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, reg)
	}

	return retrieval.NewEngine(cfg.Retrieval, retrieval.Dependencies{
		Provider:    provider,
		Chunks:      chunks,
		Entities:    entities,
		Scorer:      retrieval.SimpleScoreProvider{},
		Counter:     counter,
		CacheConfig: cfg.Cache,
		Logger:      logger,
		Metrics:     collector,
	})
}

func openStores(cfg *config.Config, logger *zap.Logger) (store.ChunkStore, store.EntityStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, nil
	default:
		s := store.NewMemoryStore(logger)
		return s, s, nil
	}
}

// =============================================================================
// 🔍 query 命令
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	topK := fs.Int("top-k", 0, "Vector candidates per signal")
	budget := fs.Int("budget", 0, "Token budget for assembled context")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: retrievalflow query \"question\" [options]")
		os.Exit(1)
	}
	query := fs.Arg(0)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	eng, err := buildEngine(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	ctx := context.Background()
	if err := eng.Refresh(ctx); err != nil {
		logger.Fatal("Failed to build lexical indexes", zap.Error(err))
	}

	result, err := eng.Retrieve(ctx, query, retrieval.Options{
		TopKVector:  *topK,
		TokenBudget: *budget,
	})
	if err != nil {
		logger.Fatal("Retrieve failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Println(string(out))
}

// =============================================================================
// 📥 load 命令
// =============================================================================

func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	chunksPath := fs.String("chunks", "", "JSONL file of chunks")
	entitiesPath := fs.String("entities", "", "JSONL file of entities")
	relationsPath := fs.String("relations", "", "JSONL file of relations")
	embed := fs.Bool("embed", false, "Backfill missing embeddings via the embedding provider")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if cfg.Store.Driver != "sqlite" {
		logger.Fatal("load requires the sqlite store driver")
	}
	s, err := store.OpenSQLite(cfg.Store.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}

	ctx := context.Background()

	var pipeline *ingest.Pipeline
	if *embed {
		pipeline = ingest.NewPipeline(cfg.Ingest, buildProvider(cfg), logger)
		defer pipeline.Close()
	}

	if *chunksPath != "" {
		var chunks []store.Chunk
		if err := readJSONL(*chunksPath, func(line []byte) error {
			var c store.Chunk
			if err := json.Unmarshal(line, &c); err != nil {
				return err
			}
			chunks = append(chunks, c)
			return nil
		}); err != nil {
			logger.Fatal("Failed to read chunks", zap.Error(err))
		}
		if pipeline != nil {
			if chunks, err = pipeline.EmbedChunks(ctx, chunks); err != nil {
				logger.Fatal("Failed to backfill chunk embeddings", zap.Error(err))
			}
		}
		if err := s.SaveChunks(ctx, chunks); err != nil {
			logger.Fatal("Failed to save chunks", zap.Error(err))
		}
		logger.Info("chunks loaded", zap.Int("count", len(chunks)))
	}

	if *entitiesPath != "" {
		var entities []store.Entity
		if err := readJSONL(*entitiesPath, func(line []byte) error {
			var e store.Entity
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			entities = append(entities, e)
			return nil
		}); err != nil {
			logger.Fatal("Failed to read entities", zap.Error(err))
		}
		if pipeline != nil {
			if entities, err = pipeline.EmbedEntities(ctx, entities); err != nil {
				logger.Fatal("Failed to backfill entity embeddings", zap.Error(err))
			}
		}
		if err := s.SaveEntities(ctx, entities); err != nil {
			logger.Fatal("Failed to save entities", zap.Error(err))
		}
		logger.Info("entities loaded", zap.Int("count", len(entities)))
	}

	if *relationsPath != "" {
		var relations []store.Relation
		if err := readJSONL(*relationsPath, func(line []byte) error {
			var r store.Relation
			if err := json.Unmarshal(line, &r); err != nil {
				return err
			}
			relations = append(relations, r)
			return nil
		}); err != nil {
			logger.Fatal("Failed to read relations", zap.Error(err))
		}
		if err := s.SaveRelations(ctx, relations); err != nil {
			logger.Fatal("Failed to save relations", zap.Error(err))
		}
		logger.Info("relations loaded", zap.Int("count", len(relations)))
	}
}

func readJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// =============================================================================
// 💾 snapshot 命令
// =============================================================================

func runSnapshot(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: retrievalflow snapshot <save|restore> [options]")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args[1:])

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if cfg.Snapshot.Addr == "" {
		logger.Fatal("snapshot requires snapshot.addr in config")
	}
	snapCfg := cfg.Snapshot
	defaults := embedding.DefaultRedisSnapshotConfig()
	if snapCfg.Key == "" {
		snapCfg.Key = defaults.Key
	}
	if snapCfg.Timeout <= 0 {
		snapCfg.Timeout = defaults.Timeout
	}

	snap, err := embedding.NewRedisSnapshotStore(snapCfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect snapshot store", zap.Error(err))
	}
	defer snap.Close()

	eng, err := buildEngine(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	ctx := context.Background()
	switch sub {
	case "save":
		if err := eng.Cache().Snapshot(ctx, snap); err != nil {
			logger.Fatal("Snapshot save failed", zap.Error(err))
		}
		logger.Info("cache snapshot saved", zap.Int("entries", eng.Cache().Len()))
	case "restore":
		if err := eng.Cache().Restore(ctx, snap); err != nil {
			logger.Fatal("Snapshot restore failed", zap.Error(err))
		}
		logger.Info("cache snapshot restored", zap.Int("entries", eng.Cache().Len()))
	default:
		fmt.Fprintf(os.Stderr, "Unknown snapshot subcommand: %s\n", sub)
		os.Exit(1)
	}
}
