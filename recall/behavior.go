package recall

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/pkg/score"
)

// BehaviorDataset 是每日的协同过滤结果。
type BehaviorDataset interface {
	Behavior(ctx context.Context, t core.ItemType) (map[core.Identity][]datasource.BehaviorRec, string, error)
}

type behaviorTable struct {
	users map[core.Identity][]datasource.BehaviorRec
	name  string
}

// Behavior 是基于浏览行为的协同过滤召回，读取离线任务每天产出的结果，分数按用户标准化。
//
// 使用场景：
//   - Behavior：论文（cf_{date}.json.gz）
//   - BehaviorPerson：学者（cf_person_{date}.json.gz）
type Behavior struct {
	base
	recallType core.RecallType
	tables     map[core.ItemType]*table[behaviorTable]
	itemTypes  []core.ItemType
}

// NewBehavior 创建论文行为召回
func NewBehavior(data BehaviorDataset, opts ...Option) *Behavior {
	return newBehavior(data, core.RecallBehavior, []core.ItemType{core.ItemPub}, opts)
}

// NewBehaviorPerson 创建学者行为召回
func NewBehaviorPerson(data BehaviorDataset, opts ...Option) *Behavior {
	return newBehavior(data, core.RecallBehaviorPerson, []core.ItemType{core.ItemPerson}, opts)
}

func newBehavior(data BehaviorDataset, rt core.RecallType, types []core.ItemType, opts []Option) *Behavior {
	b := &Behavior{
		base:       newBase(opts),
		recallType: rt,
		tables:     make(map[core.ItemType]*table[behaviorTable], len(types)),
		itemTypes:  types,
	}
	for _, t := range types {
		b.tables[t] = newTable(b.now, 0, func(ctx context.Context) (behaviorTable, error) {
			users, name, err := data.Behavior(ctx, t)
			return behaviorTable{users: users, name: name}, err
		})
	}
	return b
}

func (b *Behavior) Name() string                { return "recall." + string(b.recallType) }
func (b *Behavior) RecallType() core.RecallType { return b.recallType }

func (b *Behavior) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	id := rctx.Identity.Canonical()
	out := core.ItemsByType{}
	if id.IsCold() {
		return out, nil
	}
	for _, t := range b.itemTypes {
		tbl := b.load(ctx, t)
		out.Add(t, b.items(t, tbl.users[id], tbl.name)...)
	}
	return out, nil
}

// RecallAll 返回数据集中全部用户的结果。
func (b *Behavior) RecallAll(ctx context.Context) (map[core.Identity]core.ItemsByType, error) {
	out := make(map[core.Identity]core.ItemsByType)
	for _, t := range b.itemTypes {
		tbl := b.load(ctx, t)
		for id, recs := range tbl.users {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, ok := out[id]; !ok {
				out[id] = core.ItemsByType{}
			}
			out[id].Add(t, b.items(t, recs, tbl.name)...)
		}
	}
	return out, nil
}

func (b *Behavior) load(ctx context.Context, t core.ItemType) behaviorTable {
	tbl, err := b.tables[t].Get(ctx)
	if err != nil {
		sourceLog(ctx, b.Name()).Warn().Err(err).Str("type", string(t)).Msg("load behavior dataset failed")
	}
	return tbl
}

func (b *Behavior) items(t core.ItemType, recs []datasource.BehaviorRec, name string) []*core.Item {
	if len(recs) == 0 {
		return nil
	}
	items := make([]*core.Item, 0, len(recs))
	for _, r := range recs {
		it := b.newItem(r.Item, t, r.Score, b.recallType)
		it.RecallReason = reasonBehavior
		if r.ReasonZh != "" {
			it.RecallReason.Zh = r.ReasonZh
		}
		if r.ReasonEn != "" {
			it.RecallReason.En = r.ReasonEn
		}
		it.RecallSource = name
		items = append(items, it)
	}
	score.StandardizeItems(items)
	return items
}
