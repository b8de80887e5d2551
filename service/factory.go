package service

import (
	"fmt"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// options 把 ServiceConfig 转为客户端选项
func options(config *ServiceConfig) []ClientOption {
	opts := []ClientOption{WithTimeout(config.Timeout), WithQPS(config.QPS)}
	if config.Auth != nil {
		opts = append(opts, WithAuth(config.Auth))
	}
	return opts
}

// NewSearchService 根据配置创建检索客户端（工厂方法）。
func NewSearchService(config *ServiceConfig) (core.SearchService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return NewSearchClient(config.Endpoint, options(config)...), nil
}

// NewEmbeddingService 根据配置创建向量客户端。
func NewEmbeddingService(config *ServiceConfig) (core.EmbeddingService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	return NewEmbeddingClient(config.Endpoint, config.Model, options(config)...), nil
}

// NewTranslator 根据配置创建翻译客户端，store 非空时在前面加一层持久化缓存。
func NewTranslator(config *ServiceConfig, store TranslationStore) (core.Translator, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	var t core.Translator = NewTranslateClient(config.Endpoint, config.AppID, config.AppSecret, options(config)...)
	if store != nil {
		t = NewCachedTranslator(t, store, string(ServiceTypeTranslate))
	}
	return t, nil
}

// NewVenueService 根据配置创建期刊客户端。config.Timeout 作用于简称接口，
// quartileTimeout 作用于分区接口。
func NewVenueService(config *ServiceConfig, quartileTimeout time.Duration) (core.VenueService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return NewVenueClient(config.Endpoint, quartileTimeout, options(config)...), nil
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("config is required")
	}
	if config.Endpoint == "" {
		return fmt.Errorf("%s: endpoint is required", config.Type)
	}
	return nil
}
