package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited 用令牌桶限流包装一个提供者，保护外部嵌入服务的配额。
// 批量请求按文本条数消耗令牌。
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

var _ Provider = (*RateLimited)(nil)

// NewRateLimited 创建限流包装。rps 为每秒允许的文本条数，burst 为突发上限。
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Name() string    { return r.inner.Name() + "+ratelimit" }
func (r *RateLimited) Dimensions() int { return r.inner.Dimensions() }

func (r *RateLimited) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.inner.EmbedQuery(ctx, text)
}

func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := r.limiter.WaitN(ctx, maxInt(len(texts), 1)); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.inner.EmbedBatch(ctx, texts)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
