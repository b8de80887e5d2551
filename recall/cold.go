package recall

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
)

const coldScore = 0.1

// ColdDataset 是冷启动推荐数据集。
type ColdDataset interface {
	Cold(ctx context.Context) ([]datasource.ColdRec, string, error)
}

type coldTable struct {
	recs []datasource.ColdRec
	name string
}

// Cold 从冷启动数据集中取出一个召回类型的条目，固定 0.1 分。
//
// 使用场景：
//   - ColdAI2K：cold_ai2k
//   - ColdSubscribe：cold_subscribe
//   - ColdSubscribeOAG：cold_subscribe_oag
type Cold struct {
	base
	recallType core.RecallType
	table      *table[coldTable]
}

func NewColdAI2K(data ColdDataset, opts ...Option) *Cold {
	return newCold(data, core.RecallColdAI2K, opts)
}

func NewColdSubscribe(data ColdDataset, opts ...Option) *Cold {
	return newCold(data, core.RecallColdSubscribe, opts)
}

func NewColdSubscribeOAG(data ColdDataset, opts ...Option) *Cold {
	return newCold(data, core.RecallColdSubscribeOAG, opts)
}

func newCold(data ColdDataset, rt core.RecallType, opts []Option) *Cold {
	c := &Cold{base: newBase(opts), recallType: rt}
	c.table = newTable(c.now, 0, func(ctx context.Context) (coldTable, error) {
		recs, name, err := data.Cold(ctx)
		return coldTable{recs: recs, name: name}, err
	})
	return c
}

func (c *Cold) Name() string                { return "recall." + string(c.recallType) }
func (c *Cold) RecallType() core.RecallType { return c.recallType }

func (c *Cold) Recall(ctx context.Context, _ *core.RecommendContext) (core.ItemsByType, error) {
	tbl, err := c.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, c.Name()).Warn().Err(err).Msg("load cold dataset failed")
	}
	var items []*core.Item
	for _, r := range tbl.recs {
		if r.RecallType != c.recallType || r.Item == "" {
			continue
		}
		typ := r.Type
		if typ == "" {
			typ = core.ItemPub
		}
		it := c.newItem(r.Item, typ, coldScore, c.recallType)
		it.RecallReason = r.RecallReason
		it.RecallSource = tbl.name
		items = append(items, it)
	}
	out := core.ItemsByType{}
	for _, it := range dedupFirst(items) {
		out.Add(it.Type, it)
	}
	return out, nil
}
