package filter

import (
	"context"

	"github.com/louhangyu/zhipu/core"
)

// ParamExcludeIDs 是请求参数中排除列表的 key，值为 []string。
const ParamExcludeIDs = "exclude_ids"

// ExcludeFilter 过滤排除列表中的物品 id。
// 排除列表来自两部分：固定的 ItemIDs 与请求参数 exclude_ids。
type ExcludeFilter struct {
	ItemIDs []string
}

// NewExcludeFilter 创建一个排除过滤器。
func NewExcludeFilter(itemIDs ...string) *ExcludeFilter {
	return &ExcludeFilter{ItemIDs: itemIDs}
}

func (f *ExcludeFilter) Name() string { return "filter.exclude" }

func (f *ExcludeFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	for _, id := range f.ItemIDs {
		if item.ID == id {
			return true, nil
		}
	}
	for _, id := range ExcludeIDs(rctx) {
		if item.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// ExcludeIDs 读取请求级排除列表。
func ExcludeIDs(rctx *core.RecommendContext) []string {
	if rctx == nil {
		return nil
	}
	v, ok := rctx.Param(ParamExcludeIDs)
	if !ok {
		return nil
	}
	switch ids := v.(type) {
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if s, ok := id.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
