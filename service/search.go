package service

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// SearchClient 是论文检索服务的客户端。
//
// 请求：GET {endpoint}/api/v1/search?q=...&k=...
// 响应：{"data": [{"id": "...", "score": 0.83, "title": "..."}]}
type SearchClient struct {
	http *httpClient
}

// NewSearchClient 创建检索客户端，默认超时 2s。
func NewSearchClient(endpoint string, opts ...ClientOption) *SearchClient {
	return &SearchClient{http: newHTTPClient("search", endpoint, 2*time.Second, opts...)}
}

// Search 实现 core.SearchService
func (c *SearchClient) Search(ctx context.Context, query string, k int) ([]core.SearchHit, error) {
	if query == "" || k <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("k", strconv.Itoa(k))

	var resp struct {
		Data []core.SearchHit `json:"data"`
	}
	if err := c.http.getJSON(ctx, "/api/v1/search", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) > k {
		resp.Data = resp.Data[:k]
	}
	return resp.Data, nil
}

var _ core.SearchService = (*SearchClient)(nil)
