package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// EmbeddingClient 是 OpenAI 兼容的文本向量接口客户端。
//
// 请求：POST {endpoint}/v1/embeddings {"model": "...", "input": [...]}
// 响应：{"data": [{"index": 0, "embedding": [...]}]}
type EmbeddingClient struct {
	http  *httpClient
	model string
}

// NewEmbeddingClient 创建向量客户端，默认超时 10s。
func NewEmbeddingClient(endpoint, model string, opts ...ClientOption) *EmbeddingClient {
	return &EmbeddingClient{
		http:  newHTTPClient("embedding", endpoint, 10*time.Second, opts...),
		model: model,
	}
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed 实现 core.EmbeddingService
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 实现 core.EmbeddingService，空白文本直接拒绝。
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeInvalidInput, "service: embedding input is blank")
		}
		input[i] = t
	}

	var resp embeddingResponse
	if err := c.http.postJSON(ctx, "/v1/embeddings", map[string]any{"model": c.model, "input": input}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, c.http.unavailable("embedding count mismatch", nil)
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

var _ core.EmbeddingService = (*EmbeddingClient)(nil)
