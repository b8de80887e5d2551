package recall

import (
	"context"
	"sort"
	"time"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/score"
)

const (
	editorHotWindow  = 24 * time.Hour
	editorHotRefresh = time.Hour
	coldTopLimit     = 200
)

// EditorPickLog 读取运营配置的热点与置顶条目。
type EditorPickLog interface {
	EditorPicks(ctx context.Context, since time.Time, top bool) ([]core.EditorPick, error)
	TopPicks(ctx context.Context, now time.Time, limit int) ([]core.EditorPick, error)
}

// EditorHot 是运营热点召回：最近一天的非置顶条目，按浏览量饱和分 1−1/e^{ln(views+2)} 降序。
type EditorHot struct {
	base
	table *table[[]*core.Item]
}

func NewEditorHot(picks EditorPickLog, views aggregate.ViewCounter, opts ...Option) *EditorHot {
	e := &EditorHot{base: newBase(opts)}
	e.table = newTable(e.now, editorHotRefresh, func(ctx context.Context) ([]*core.Item, error) {
		return e.load(ctx, picks, views)
	})
	return e
}

func (e *EditorHot) Name() string                { return "recall.editor_hot" }
func (e *EditorHot) RecallType() core.RecallType { return core.RecallEditorHot }

func (e *EditorHot) load(ctx context.Context, picks EditorPickLog, views aggregate.ViewCounter) ([]*core.Item, error) {
	list, err := picks.EditorPicks(ctx, e.now().Add(-editorHotWindow), false)
	if err != nil {
		return nil, err
	}
	items := make([]*core.Item, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, p := range list {
		if p.PubID == "" {
			continue
		}
		if _, ok := seen[p.PubID]; ok {
			continue
		}
		seen[p.PubID] = struct{}{}

		n := 0
		if views != nil {
			if v, err := views.Views(ctx, core.ItemPub, p.PubID); err == nil {
				n = v
			}
		}
		it := e.newItem(p.PubID, core.ItemPub, score.Saturate(float64(n)), e.RecallType())
		it.RecallReason = reasonEditorHot
		it.RecallSource = "stream"
		it.PutExtra("interpret", p.Interpret)
		it.PutExtra("interpret_author", p.InterpretAuthor)
		it.PutExtra("report_id", p.ReportID)
		it.PutExtra("report_title", p.ReportTitle)
		it.PutExtra("report_from", p.ReportFrom)
		reportDate := ""
		if p.ReportDate != nil {
			reportDate = p.ReportDate.Format(core.DateLayout)
		}
		it.PutExtra("report_date", reportDate)
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items, nil
}

func (e *EditorHot) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	items, err := e.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, e.Name()).Warn().Err(err).Msg("load editor picks failed")
	}
	return single(core.ItemPub, cloneItems(items[:min(rctx.Count, len(items))])), nil
}

// TopItem 把置顶条目转换为推荐候选，分数随置顶时长饱和：1−1/e^{ln(age_sec+2)}。
func TopItem(p core.EditorPick, now time.Time) *core.Item {
	id, typ := p.ItemRef()
	age := now.Sub(p.CreatedAt).Seconds()
	it := &core.Item{
		ID:           id,
		Type:         typ,
		Score:        score.Saturate(age),
		RecallType:   core.RecallTop,
		RecallReason: core.Reason{Zh: p.TopReasonZh, En: p.TopReasonEn},
		RecallTime:   now.Format(core.DateTimeLayout),
	}
	it.PutExtra("video_url", p.VideoURL)
	if typ == core.ItemAI2K {
		it.PutExtra("ai2k_id", p.AI2KID)
		it.PutExtra("ai2k_title", p.AI2KTitle)
		it.PutExtra("ai2k_description", p.AI2KDescription)
		it.PutExtra("ai2k_authors", p.AI2KAuthorList())
	}
	return it
}

// ColdTop 是冷启动的运营置顶召回：最近 200 条置顶条目（论文与专题）。
type ColdTop struct {
	base
	table *table[[]core.EditorPick]
}

func NewColdTop(picks EditorPickLog, opts ...Option) *ColdTop {
	c := &ColdTop{base: newBase(opts)}
	c.table = newTable(c.now, editorHotRefresh, func(ctx context.Context) ([]core.EditorPick, error) {
		return picks.TopPicks(ctx, time.Time{}, coldTopLimit)
	})
	return c
}

func (c *ColdTop) Name() string                { return "recall.cold_top" }
func (c *ColdTop) RecallType() core.RecallType { return core.RecallColdTop }

func (c *ColdTop) Recall(ctx context.Context, _ *core.RecommendContext) (core.ItemsByType, error) {
	picks, err := c.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, c.Name()).Warn().Err(err).Msg("load top picks failed")
	}
	now := c.now()
	items := make([]*core.Item, 0, len(picks))
	for _, p := range picks {
		it := TopItem(p, now)
		if it.ID == "" || (it.Type != core.ItemPub && it.Type != core.ItemPubTopic) {
			continue
		}
		it.RecallType = c.RecallType()
		items = append(items, it)
	}
	out := core.ItemsByType{}
	for _, it := range dedupFirst(items) {
		out.Add(it.Type, it)
	}
	return out, nil
}

func cloneItems(items []*core.Item) []*core.Item {
	out := make([]*core.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
