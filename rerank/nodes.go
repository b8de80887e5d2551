package rerank

import (
	"context"
	"sort"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

// MergeNode 按召回类型偏好去重。
type MergeNode struct {
	Affinity *Affinity
}

func (n *MergeNode) Name() string        { return "rerank.merge" }
func (n *MergeNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *MergeNode) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return MergeDuplicates(items, predict(ctx, n.Affinity, rctx)), nil
}

// InterleaveNode 按召回类型偏好插排。
type InterleaveNode struct {
	Affinity *Affinity
	Rand     randutil.Rand
}

func (n *InterleaveNode) Name() string        { return "rerank.interleave" }
func (n *InterleaveNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *InterleaveNode) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return Interleave(items, predict(ctx, n.Affinity, rctx), n.Rand), nil
}

// DiscountNode 按曝光 / 点击历史衰减分数，不改变顺序；需要按衰减后分数截断时在其后接 SortNode。
type DiscountNode struct {
	Discount *Discount
}

func (n *DiscountNode) Name() string        { return "rerank.discount" }
func (n *DiscountNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *DiscountNode) Process(ctx context.Context, rctx *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return n.Discount.Apply(ctx, rctx.Identity, items), nil
}

// SortNode 按分数稳定降序。
type SortNode struct{}

func (n *SortNode) Name() string        { return "rerank.sort" }
func (n *SortNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *SortNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	SortByScore(items)
	return items, nil
}

// SortByScore 原地按分数稳定降序。
func SortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
}

func predict(ctx context.Context, a *Affinity, rctx *core.RecommendContext) map[core.RecallType]float64 {
	if a == nil || rctx == nil {
		return nil
	}
	return a.Predict(ctx, rctx.Identity)
}
