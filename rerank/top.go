package rerank

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
)

// ParamPrependTop 是请求参数 key，值为 true 时在结果前插入运营置顶物品。
const ParamPrependTop = "prepend_top"

// TopSource 提供运营置顶物品。
type TopSource interface {
	TopItems(ctx context.Context) []*core.Item
}

// PrependTopNode 把置顶物品放在最前面，再按召回类型偏好去重。
type PrependTopNode struct {
	Top      TopSource
	Affinity *Affinity
}

func (n *PrependTopNode) Name() string        { return "rerank.prepend_top" }
func (n *PrependTopNode) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *PrependTopNode) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.Top == nil || rctx == nil {
		return items, nil
	}
	if v, ok := rctx.Param(ParamPrependTop); !ok || v != true {
		return items, nil
	}
	top := n.Top.TopItems(ctx)
	if len(top) == 0 {
		return items, nil
	}
	merged := make([]*core.Item, 0, len(top)+len(items))
	merged = append(merged, top...)
	merged = append(merged, items...)
	return MergeDuplicates(merged, predict(ctx, n.Affinity, rctx)), nil
}
