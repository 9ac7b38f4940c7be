package embedding

import (
	"context"
	"errors"
)

// Provider 定义统一的嵌入提供者接口。
// 实现可能失败、可能有显著的首调用延迟（模型预热），调用方需自行容忍。
type Provider interface {
	// EmbedQuery 为单条文本生成嵌入。
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch 为多条文本生成嵌入，返回与输入同序的向量。
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Name 返回提供者名称。
	Name() string

	// Dimensions 返回嵌入维度。
	Dimensions() int
}

// ErrEmptyText 空文本无法嵌入。
var ErrEmptyText = errors.New("embedding: empty text")
