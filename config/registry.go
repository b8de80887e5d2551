package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

// 使用配置驱动时，需在入口处 import _ "github.com/louhangyu/zhipu/config/builders"
// 以触发内置 Node（rerank.discount、rank.resort、filter 等）的 init 注册。

// Deps 是构建 Node 时注入的运行期依赖，由入口处组装。
type Deps struct {
	Discount *rerank.Discount
	Affinity *rerank.Affinity
	Resorter *rank.Resorter
	Top      rerank.TopSource
	Rand     randutil.Rand

	// Sources 是可在 recall.fanout 中按名称引用的召回源
	Sources map[string]recall.Source
}

// NodeBuilder 根据 config 与依赖构建 Node。
// 各组件在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type NodeBuilder func(config map[string]any, deps *Deps) (pipeline.Node, error)

var (
	defaultBuilders   = make(map[string]NodeBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑，供 NewFactory 与配置驱动使用。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewFactory 返回绑定了 deps 的 NodeFactory，包含所有通过 Register 注册的 Node 类型。
func NewFactory(deps *Deps) *pipeline.NodeFactory {
	if deps == nil {
		deps = &Deps{}
	}
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		f.Register(typeName, func(config map[string]any) (pipeline.Node, error) {
			return builder(config, deps)
		})
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	for _, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			continue
		}
		defaultBuildersMu.RLock()
		_, ok := defaultBuilders[nc.Type]
		defaultBuildersMu.RUnlock()
		if !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}

// BuildPipeline 校验并构建 pipeline。
func BuildPipeline(cfg *pipeline.Config, deps *Deps) (*pipeline.Pipeline, error) {
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	return cfg.BuildPipeline(NewFactory(deps))
}

// DefaultServePipeline 是下发链路：衰减、按衰减后分数排序、截断、置顶、排除。
func DefaultServePipeline() *pipeline.Config {
	return pipeline.NewConfig("serve",
		pipeline.NodeConfig{Type: "rerank.discount"},
		pipeline.NodeConfig{Type: "rerank.sort"},
		pipeline.NodeConfig{Type: "rerank.topn"},
		pipeline.NodeConfig{Type: "rerank.prepend_top"},
		pipeline.NodeConfig{Type: "filter", Config: map[string]any{
			"filters": []any{map[string]any{"type": "exclude"}},
		}},
	)
}

// DefaultTrainPipeline 是写缓存前的链路：去重、Stage A、插排。
func DefaultTrainPipeline() *pipeline.Config {
	return pipeline.NewConfig("train",
		pipeline.NodeConfig{Type: "rerank.merge"},
		pipeline.NodeConfig{Type: "rank.resort"},
		pipeline.NodeConfig{Type: "rerank.interleave"},
	)
}
