package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/retrievalflow/internal/tlsutil"
)

// HTTPConfig HTTP 提供者配置。
type HTTPConfig struct {
	// BaseURL 端点根地址（OpenAI 兼容，如 https://api.openai.com）
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey 鉴权密钥
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model 嵌入模型名
	Model string `yaml:"model" json:"model"`
	// Dimensions 输出维度
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Timeout 单次请求超时。首次调用可能因模型预热明显偏慢，
	// 该值应覆盖预热延迟而不是掩盖它。
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// HTTPProvider 调用 OpenAI 兼容 /embeddings 端点的提供者。
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider 创建 HTTP 提供者。
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
	}
}

func (p *HTTPProvider) Name() string    { return "http-embedding" }
func (p *HTTPProvider) Dimensions() int { return p.cfg.Dimensions }

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery 为单条文本生成嵌入。
func (p *HTTPProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 为多条文本生成嵌入。
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(embedRequest{
		Input:      texts,
		Model:      p.cfg.Model,
		Dimensions: p.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embed response count mismatch: want %d, got %d", len(texts), len(parsed.Data))
	}

	out := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embed response index out of range: %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func truncateBody(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
