package service

import (
	"context"
	"net/url"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// 期刊接口默认超时
const (
	DefaultVenueShortTimeout    = 30 * time.Second
	DefaultVenueQuartileTimeout = 5 * time.Second
)

// VenueClient 查询期刊简称与论文分区，两个接口各自有熔断器与超时，互不影响。
type VenueClient struct {
	short    *httpClient
	quartile *httpClient
}

// NewVenueClient 创建期刊客户端，opts 同时作用于两个接口；
// quartileTimeout 单独控制分区接口的超时，0 表示默认 5s。
func NewVenueClient(endpoint string, quartileTimeout time.Duration, opts ...ClientOption) *VenueClient {
	qopts := append([]ClientOption{}, opts...)
	qopts = append(qopts, WithTimeout(quartileTimeout))
	return &VenueClient{
		short:    newHTTPClient("venue_short", endpoint, DefaultVenueShortTimeout, opts...),
		quartile: newHTTPClient("venue_quartile", endpoint, DefaultVenueQuartileTimeout, qopts...),
	}
}

// ShortName 实现 core.VenueService
func (c *VenueClient) ShortName(ctx context.Context, alias, venueID string) (string, error) {
	params := url.Values{}
	params.Set("alias", alias)
	params.Set("venue_hhb_id", venueID)

	var resp struct {
		Data any `json:"data"`
	}
	if err := c.short.getJSON(ctx, "/api/v2/venue/short", params, &resp); err != nil {
		return "", err
	}
	switch v := resp.Data.(type) {
	case string:
		return v, nil
	case map[string]any:
		s, _ := v["short"].(string)
		return s, nil
	default:
		return "", nil
	}
}

// Quartile 实现 core.VenueService
func (c *VenueClient) Quartile(ctx context.Context, paperID string) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", paperID)

	var resp struct {
		Success *bool          `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := c.quartile.getJSON(ctx, "/api/v2/venue/quartile/by/paper_id", params, &resp); err != nil {
		return map[string]any{}, err
	}
	if resp.Data == nil || (resp.Success != nil && !*resp.Success) {
		return map[string]any{}, nil
	}
	return resp.Data, nil
}

var _ core.VenueService = (*VenueClient)(nil)
