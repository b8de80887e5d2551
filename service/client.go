package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/metrics"
)

// httpClient 是各协作方客户端共用的 HTTP 基础：认证、限流、熔断与超时。
type httpClient struct {
	name     string
	endpoint string
	auth     *AuthConfig
	timeout  time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[]byte]
}

// ClientOption 是客户端的通用配置选项
type ClientOption func(*httpClient)

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *httpClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithAuth 设置认证信息
func WithAuth(auth *AuthConfig) ClientOption {
	return func(c *httpClient) {
		c.auth = auth
	}
}

// WithQPS 设置出站限流
func WithQPS(qps float64) ClientOption {
	return func(c *httpClient) {
		if qps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(qps), int(qps)+1)
		}
	}
}

// WithHTTPClient 替换底层 http.Client（测试中常用）
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.client = hc
	}
}

func newHTTPClient(name, endpoint string, defaultTimeout time.Duration, opts ...ClientOption) *httpClient {
	c := &httpClient{
		name:     name,
		endpoint: endpoint,
		timeout:  defaultTimeout,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}

	log := logging.WithComponent("service")
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		// 至少 10 个请求、失败率不低于 60% 时打开
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return c
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// getJSON 发送 GET 请求并把响应解码到 out。
func (c *httpClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	u := c.endpoint + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, u, nil, out)
}

// postJSON 发送 JSON 请求体并把响应解码到 out。
func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.endpoint+path, data, out)
}

func (c *httpClient) do(ctx context.Context, method, u string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.unavailable("rate limit wait", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.cb.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.addAuth(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status=%d, body=%.200s", resp.StatusCode, data)
		}
		return data, nil
	})
	metrics.RecordBreaker(c.name, int(stateToFloat(c.cb.State())), err)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.WrapDomainError(core.ModuleService, core.ErrorCodeTimeout, "service: "+c.name+" timeout", err)
		}
		return c.unavailable(method+" "+u, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.unavailable("decode response", err)
	}
	return nil
}

func (c *httpClient) unavailable(msg string, err error) error {
	return core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, "service: "+c.name+": "+msg, err)
}

// addAuth 添加认证信息到 HTTP 请求
func (c *httpClient) addAuth(req *http.Request) {
	if c.auth == nil {
		return
	}
	switch c.auth.Type {
	case "basic":
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.auth.APIKey)
	}
}
