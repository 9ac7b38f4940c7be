package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/retrievalflow/internal/cache"
	"github.com/BaSui01/retrievalflow/retrieval"
)

// =============================================================================
// 🔍 检索 Handler
// =============================================================================

// RetrieveHandler 检索请求处理器。
// results 为可选的 Redis 结果缓存；为 nil 时每次查询都走完整流程。
type RetrieveHandler struct {
	engine  *retrieval.Engine
	results *cache.Manager
	logger  *zap.Logger
}

// RetrieveRequest 检索请求体
type RetrieveRequest struct {
	// 查询文本
	Query string `json:"query"`
	// 向量信号召回数，0 使用服务端默认
	TopKVector int `json:"top_k_vector,omitempty"`
	// 重排序保留数，0 使用服务端默认
	TopKRerank int `json:"top_k_rerank,omitempty"`
	// token 预算，0 使用服务端默认
	TokenBudget int `json:"token_budget,omitempty"`
}

// NewRetrieveHandler 创建检索处理器。
func NewRetrieveHandler(engine *retrieval.Engine, results *cache.Manager, logger *zap.Logger) *RetrieveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrieveHandler{
		engine:  engine,
		results: results,
		logger:  logger.With(zap.String("component", "retrieve_handler")),
	}
}

// HandleRetrieve 处理 POST /v1/retrieve。
func (h *RetrieveHandler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "use POST", nil)
		return
	}

	req, err := decodeJSON[RetrieveRequest](r)
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}

	opts := retrieval.Options{
		TopKVector:  req.TopKVector,
		TopKRerank:  req.TopKRerank,
		TokenBudget: req.TokenBudget,
	}

	if h.results != nil {
		if cached, err := h.results.GetResult(r.Context(), req.Query, opts); err == nil {
			h.logger.Debug("result cache hit", zap.String("query_id", cached.QueryID))
			WriteSuccess(w, cached)
			return
		} else if !cache.IsCacheMiss(err) {
			// 缓存故障降级为直接检索。
			h.logger.Warn("result cache unavailable", zap.Error(err))
		}
	}

	res, err := h.engine.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrEmptyQuery), errors.Is(err, retrieval.ErrInvalidBudget):
			WriteErrorMessage(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		default:
			WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, "retrieval failed", h.logger)
		}
		return
	}

	if h.results != nil {
		if err := h.results.PutResult(r.Context(), req.Query, opts, res); err != nil {
			h.logger.Warn("result cache write failed", zap.Error(err))
		}
	}

	WriteSuccess(w, res)
}

// HandleRefresh 处理 POST /v1/refresh：重建词法索引并清空结果缓存。
func (h *RetrieveHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "use POST", nil)
		return
	}

	if err := h.engine.Refresh(r.Context()); err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, CodeInternal, "refresh failed", h.logger)
		return
	}
	if h.results != nil {
		if err := h.results.Invalidate(r.Context()); err != nil {
			h.logger.Warn("result cache invalidation failed", zap.Error(err))
		}
	}

	WriteSuccess(w, map[string]string{"status": "refreshed"})
}

// HandleStats 处理 GET /v1/stats：返回嵌入缓存统计。
func (h *RetrieveHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.engine.CacheStats())
}
