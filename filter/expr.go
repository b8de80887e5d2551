package filter

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/dsl"
)

// ExprFilter 是表达式过滤器：表达式为 true 的物品被过滤。
// Invert 为 true 时反过来，只保留表达式为 true 的物品。
//
// 示例：
//
//	&ExprFilter{Expr: `item.type == "pub" && !has(item.extra.title)`}
//	&ExprFilter{Expr: `item.score > 0`, Invert: true}
type ExprFilter struct {
	Expr   string
	Invert bool
}

// NewExprFilter 编译表达式并创建过滤器，表达式非法时返回错误。
func NewExprFilter(expr string, invert bool) (*ExprFilter, error) {
	if _, err := dsl.Compile(expr); err != nil {
		return nil, err
	}
	return &ExprFilter{Expr: expr, Invert: invert}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	ok, err := dsl.NewEval(item, rctx).Evaluate(f.Expr)
	if err != nil {
		return false, err
	}
	if f.Invert {
		return !ok, nil
	}
	return ok, nil
}
