// Package service 是外部 HTTP 协作方（检索、向量、翻译、期刊）的客户端。
//
// 每个客户端：
//   - 实现 core 中对应的领域接口
//   - 请求经过 gobreaker 熔断器与 x/time/rate 限流
//   - 每次调用都有独立的超时
//   - 非 200 或熔断打开时返回 UNAVAILABLE 错误，调用方按空结果处理
package service

import "time"

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeSearch    ServiceType = "search"    // 论文检索
	ServiceTypeEmbedding ServiceType = "embedding" // 文本向量
	ServiceTypeTranslate ServiceType = "translate" // 关键词翻译
	ServiceTypeVenue     ServiceType = "venue"     // 期刊简称 / 分区
)

// ServiceConfig 服务配置
type ServiceConfig struct {
	// Type 服务类型
	Type ServiceType `koanf:"type"`

	// Endpoint 服务根地址，如 "http://gateway.internal"
	Endpoint string `koanf:"endpoint"`

	// Model 模型名称（向量服务使用）
	Model string `koanf:"model"`

	// Timeout 单次请求超时
	Timeout time.Duration `koanf:"timeout"`

	// QPS 出站限流，0 表示不限
	QPS float64 `koanf:"qps"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `koanf:"auth"`

	// AppID / AppSecret 签名类接口使用（翻译）
	AppID     string `koanf:"app_id"`
	AppSecret string `koanf:"app_secret"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `koanf:"type"` // "basic", "bearer", "api_key"
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Token    string `koanf:"token"`
	APIKey   string `koanf:"api_key"`
}
