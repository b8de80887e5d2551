package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/score"
)

const (
	hotDays    = 30
	hotTopN    = 100
	hotRefresh = time.Hour
)

// ClickLog 汇总物品的点击数。
type ClickLog interface {
	ClickCounts(ctx context.Context, logType int, since time.Time) ([]core.ItemCount, error)
}

// Hot 是全站热门召回：近 30 天点击量 Top 100 的论文。
// 分数为名次分 1−i/n，再做标准化。
type Hot struct {
	base
	table *table[[]core.ItemCount]
}

func NewHot(clicks ClickLog, opts ...Option) *Hot {
	h := &Hot{base: newBase(opts)}
	h.table = newTable(h.now, hotRefresh, func(ctx context.Context) ([]core.ItemCount, error) {
		counts, err := clicks.ClickCounts(ctx, core.LogTypePub, h.now().AddDate(0, 0, -hotDays))
		if err != nil {
			return nil, err
		}
		return counts[:min(hotTopN, len(counts))], nil
	})
	return h
}

func (h *Hot) Name() string                { return "recall.hot" }
func (h *Hot) RecallType() core.RecallType { return core.RecallHot }

func (h *Hot) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	top, err := h.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, h.Name()).Warn().Err(err).Msg("load click counts failed")
	}
	top = top[:min(rctx.Count, len(top))]
	if len(top) == 0 {
		return core.ItemsByType{}, nil
	}

	reason := core.Reason{
		Zh: fmt.Sprintf("近%d天访问量Top %d", hotDays, hotTopN),
		En: fmt.Sprintf("Top %d viewed papers in latest %d days", hotTopN, hotDays),
	}
	items := make([]*core.Item, 0, len(top))
	for i, c := range top {
		it := h.newItem(c.ID, core.ItemPub, score.RankScore(i, len(top)), h.RecallType())
		it.RecallReason = reason
		it.RecallSource = "stream"
		items = append(items, it)
	}
	score.StandardizeItems(items)
	return single(core.ItemPub, items), nil
}
