package tokenizer

import (
	"fmt"
	"sync/atomic"
	"unicode/utf8"
)

// EstimatorTokenizer 基于字符数的 token 估算器。
// 区分 CJK 和 ASCII 字符，比朴素的 len/4 更接近真实值；
// 不需要外部编码数据，适合作为 tiktoken 不可用时的回退。
type EstimatorTokenizer struct{}

// NewEstimator 创建估算器。
func NewEstimator() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	// CJK 约 1.5 字符/token，ASCII 约 4 字符/token。
	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) Encode(text string) ([]int, error) {
	// 估算器无法真正编码，返回伪 token ID。
	count, err := e.CountTokens(text)
	if err != nil {
		return nil, err
	}
	tokens := make([]int, count)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens, nil
}

func (e *EstimatorTokenizer) Decode(_ []int) (string, error) {
	return "", fmt.Errorf("estimator tokenizer does not support decode")
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}

// FallbackTokenizer 先尝试主计数器，失败时切换到估算器并此后固定使用估算器。
// 并发安全：降级标记只会从 false 变为 true。
type FallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	degraded atomic.Bool
}

// NewFallback 创建带估算回退的计数器。
func NewFallback(primary Tokenizer) *FallbackTokenizer {
	return &FallbackTokenizer{primary: primary, fallback: NewEstimator()}
}

func (f *FallbackTokenizer) CountTokens(text string) (int, error) {
	if !f.degraded.Load() {
		n, err := f.primary.CountTokens(text)
		if err == nil {
			return n, nil
		}
		f.degraded.Store(true)
	}
	return f.fallback.CountTokens(text)
}

func (f *FallbackTokenizer) Encode(text string) ([]int, error) {
	if !f.degraded.Load() {
		tokens, err := f.primary.Encode(text)
		if err == nil {
			return tokens, nil
		}
		f.degraded.Store(true)
	}
	return f.fallback.Encode(text)
}

func (f *FallbackTokenizer) Decode(tokens []int) (string, error) {
	if !f.degraded.Load() {
		return f.primary.Decode(tokens)
	}
	return f.fallback.Decode(tokens)
}

func (f *FallbackTokenizer) Name() string {
	if f.degraded.Load() {
		return f.fallback.Name()
	}
	return f.primary.Name()
}
