package main

import (
	"context"
	"flag"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/api"
	"github.com/BaSui01/retrievalflow/internal/cache"
	"github.com/BaSui01/retrievalflow/internal/server"
	"github.com/BaSui01/retrievalflow/internal/telemetry"
)

// =============================================================================
// 🌐 serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	addr := fs.String("addr", "", "Listen address override")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	tel, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		reg = registry
	}
	eng, err := buildEngine(cfg, logger, reg)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}
	if err := eng.Refresh(context.Background()); err != nil {
		logger.Fatal("Failed to build lexical indexes", zap.Error(err))
	}

	var results *cache.Manager
	if cfg.ResultCache.Addr != "" {
		results, err = cache.NewManager(cfg.ResultCache, logger)
		if err != nil {
			logger.Fatal("Failed to connect result cache", zap.Error(err))
		}
		defer results.Close()
	}

	mux := api.NewRouter(api.RouterConfig{
		Engine:   eng,
		Results:  results,
		Registry: registry,
		Version:  Version,
		Logger:   logger,
	})

	srv := server.NewManager(mux, cfg.Server, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	logger.Info("retrieval service listening",
		zap.String("addr", srv.Addr()),
		zap.Bool("metrics", registry != nil),
		zap.Bool("result_cache", results != nil))

	srv.WaitForShutdown()
}
