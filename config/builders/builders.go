// Package builders 注册内置 Node 的配置构建器。
package builders

import (
	"fmt"
	"time"

	"github.com/louhangyu/zhipu/config"
	"github.com/louhangyu/zhipu/filter"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/conv"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
)

func init() {
	config.Register("recall.fanout", BuildFanoutNode)
	config.Register("rank.resort", BuildResortNode)
	config.Register("rerank.merge", BuildMergeNode)
	config.Register("rerank.interleave", BuildInterleaveNode)
	config.Register("rerank.discount", BuildDiscountNode)
	config.Register("rerank.sort", BuildSortNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.prepend_top", BuildPrependTopNode)
	config.Register("filter", BuildFilterNode)
}

// BuildFanoutNode 按名称引用 deps.Sources 中的召回源。
//
//	type: recall.fanout
//	config: {sources: [hot, subscribe], timeout: 5, max_concurrent: 4}
func BuildFanoutNode(cfg map[string]any, deps *config.Deps) (pipeline.Node, error) {
	names := conv.SliceAnyToString(cfg["sources"])
	if len(names) == 0 {
		return nil, fmt.Errorf("sources not found or invalid")
	}
	sources := make([]recall.Source, 0, len(names))
	for _, name := range names {
		s, ok := deps.Sources[name]
		if !ok {
			return nil, fmt.Errorf("unknown source: %s", name)
		}
		sources = append(sources, s)
	}
	fanout := &recall.Fanout{Sources: sources}
	if sec := conv.ConfigGetInt64(cfg, "timeout", 0); sec > 0 {
		fanout.Timeout = time.Duration(sec) * time.Second
	}
	if n := conv.ConfigGetInt64(cfg, "max_concurrent", 0); n > 0 {
		fanout.MaxConcurrent = int(n)
	}
	return fanout, nil
}

func BuildResortNode(_ map[string]any, deps *config.Deps) (pipeline.Node, error) {
	if deps.Resorter == nil {
		return nil, fmt.Errorf("rank.resort requires a resorter")
	}
	return &rank.ResortNode{Resorter: deps.Resorter}, nil
}

func BuildMergeNode(_ map[string]any, deps *config.Deps) (pipeline.Node, error) {
	return &rerank.MergeNode{Affinity: deps.Affinity}, nil
}

func BuildInterleaveNode(_ map[string]any, deps *config.Deps) (pipeline.Node, error) {
	return &rerank.InterleaveNode{Affinity: deps.Affinity, Rand: deps.Rand}, nil
}

func BuildDiscountNode(_ map[string]any, deps *config.Deps) (pipeline.Node, error) {
	return &rerank.DiscountNode{Discount: deps.Discount}, nil
}

func BuildSortNode(_ map[string]any, _ *config.Deps) (pipeline.Node, error) {
	return &rerank.SortNode{}, nil
}

func BuildTopNNode(cfg map[string]any, _ *config.Deps) (pipeline.Node, error) {
	return &rerank.TopNNode{N: int(conv.ConfigGetInt64(cfg, "n", 0))}, nil
}

func BuildPrependTopNode(_ map[string]any, deps *config.Deps) (pipeline.Node, error) {
	return &rerank.PrependTopNode{Top: deps.Top, Affinity: deps.Affinity}, nil
}

// BuildFilterNode 构建过滤 Node。
//
//	type: filter
//	config:
//	  filters:
//	    - {type: exclude, item_ids: [...]}
//	    - {type: expr, expr: 'item.score <= 0', invert: false}
func BuildFilterNode(cfg map[string]any, _ *config.Deps) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := conv.AsMap(fc)
		if !ok {
			continue
		}
		switch t := conv.ConfigGet(filterMap, "type", ""); t {
		case "exclude":
			filters = append(filters, filter.NewExcludeFilter(conv.SliceAnyToString(filterMap["item_ids"])...))
		case "expr":
			f, err := filter.NewExprFilter(conv.ConfigGet(filterMap, "expr", ""), conv.ConfigGet(filterMap, "invert", false))
			if err != nil {
				return nil, fmt.Errorf("filter expr: %w", err)
			}
			filters = append(filters, f)
		default:
			return nil, fmt.Errorf("unknown filter type: %s", t)
		}
	}
	return &filter.FilterNode{Filters: filters}, nil
}
