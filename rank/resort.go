package rank

import (
	"context"
	"sort"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/logging"
)

// 原召回分在重排分中的占比
const (
	keepRatioEditor  = 1.0
	keepRatioDefault = 0.7
)

// Resorter 用 Stage A 结果重排候选：score = (1−r)·stageA + r·原分数。
// 运营热点与置顶的 r 为 1.0，其他为 0.7。
type Resorter struct {
	records RecordLoader
	rank    *HybridRank
}

func NewResorter(records RecordLoader, rank *HybridRank) *Resorter {
	return &Resorter{records: records, rank: rank}
}

// Resort 原地更新候选分数并稳定降序。
//
// 规则：
//   - 没有特征（物化失败、类型不支持、没有文本）的候选被丢弃
//   - 全部候选都没有特征时原样返回
//   - Stage A 丢弃的候选（点击率先验为 0）不出现在结果中
func (r *Resorter) Resort(ctx context.Context, items []*core.Item, id core.Identity) []*core.Item {
	if len(items) == 0 {
		return items
	}
	features, _ := BuildFeatures(ctx, r.records, items)
	if len(features) == 0 {
		logging.Ctx(ctx).Warn().Str("component", "rank").Int("items", len(items)).Msg("no item features, keep order")
		return items
	}

	scores := make(map[core.ItemKey]float64, len(features))
	for _, s := range r.rank.Rank(ctx, id, features) {
		scores[s.Key] = s.Score
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		s, ok := scores[it.Key()]
		if !ok {
			continue
		}
		keep := keepRatioDefault
		if it.RecallType == core.RecallEditorHot || it.RecallType == core.RecallTop {
			keep = keepRatioEditor
		}
		it.Score = (1-keep)*s + keep*it.Score
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// ResortNode 是 Resorter 的 pipeline 节点。
type ResortNode struct {
	Resorter *Resorter
}

func (n *ResortNode) Name() string        { return "rank.resort" }
func (n *ResortNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *ResortNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Resorter == nil {
		return items, nil
	}
	return n.Resorter.Resort(ctx, items, rctx.Identity), nil
}
