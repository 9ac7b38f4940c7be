// Package tokenizer 提供上下文预算所需的 token 计数能力。
//
// 预算计量优先使用 tiktoken 精确计数；编码数据不可用时回退到
// CJK 感知的字符估算器。两者实现同一个 Tokenizer 接口，
// 上层（上下文装配器）不感知差异。
package tokenizer

import "fmt"

// Tokenizer 是统一的 token 计数接口。
type Tokenizer interface {
	// CountTokens 返回文本的 token 数。
	CountTokens(text string) (int, error)

	// Encode 将文本转换为 token ID 列表。
	Encode(text string) ([]int, error)

	// Decode 将 token ID 转换回文本。
	Decode(tokens []int) (string, error)

	// Name 返回分词器名称。
	Name() string
}

// Truncate 将文本截断到至多 maxTokens 个 token。
// 底层不支持 Decode（估算器）时按 token 比例截断字符。
func Truncate(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", fmt.Errorf("tokenizer: maxTokens must be positive, got %d", maxTokens)
	}
	tokens, err := t.Encode(text)
	if err != nil {
		return "", fmt.Errorf("tokenizer: encode for truncate: %w", err)
	}
	if len(tokens) <= maxTokens {
		return text, nil
	}
	decoded, err := t.Decode(tokens[:maxTokens])
	if err == nil {
		return decoded, nil
	}
	// 估算器路径：按比例截断 rune。
	runes := []rune(text)
	keep := len(runes) * maxTokens / len(tokens)
	if keep <= 0 {
		keep = 1
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	return string(runes[:keep]), nil
}
