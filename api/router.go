package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/api/handlers"
	"github.com/BaSui01/retrievalflow/internal/cache"
	"github.com/BaSui01/retrievalflow/retrieval"
)

// RouterConfig 路由装配参数。
type RouterConfig struct {
	// Engine 检索引擎，必填
	Engine *retrieval.Engine

	// Results 可选的 Redis 结果缓存
	Results *cache.Manager

	// Registry Prometheus 注册表；nil 时关闭 /metrics
	Registry *prometheus.Registry

	// Version 服务版本号，出现在健康检查响应中
	Version string

	// Checks 额外的健康检查项
	Checks []handlers.HealthCheck

	Logger *zap.Logger
}

// NewRouter 装配服务的全部 HTTP 路由。
func NewRouter(cfg RouterConfig) *http.ServeMux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	retrieve := handlers.NewRetrieveHandler(cfg.Engine, cfg.Results, logger)
	health := handlers.NewHealthHandler(cfg.Version, logger)
	for _, check := range cfg.Checks {
		health.RegisterCheck(check)
	}
	if cfg.Results != nil {
		health.RegisterCheck(handlers.CheckFunc{CheckName: "result_cache", Fn: cfg.Results.Ping})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/retrieve", retrieve.HandleRetrieve)
	mux.HandleFunc("/v1/refresh", retrieve.HandleRefresh)
	mux.HandleFunc("/v1/stats", retrieve.HandleStats)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	if cfg.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}
