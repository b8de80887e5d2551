package recall

import (
	"context"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/conv"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

const (
	activePersonWindow = 7 * 24 * time.Hour
	ai2kDefaultWord    = "default"
	ai2kMaxItems       = 20
	minPersonHIndex    = 10
)

// ActivePersonLog 返回最近有动态的学者。
type ActivePersonLog interface {
	ActivePersons(ctx context.Context, since time.Time) ([]string, error)
}

// WordAI2KDataset 是关键词到榜单 id 的映射。
type WordAI2KDataset interface {
	WordAI2K(ctx context.Context) (map[string][]string, error)
}

// ai2kPackage 是一个榜单及其活跃成员数。
type ai2kPackage struct {
	id      string
	members int
	active  int
	reason  core.Reason
	url     string
}

type ai2kTable struct {
	words    map[string][]string
	packages map[string]ai2kPackage
}

// AI2K 是榜单召回：订阅词映射到榜单，分数为最近 7 天有动态的成员占比，随机打散后取 20 个。
type AI2K struct {
	base
	profiles core.ProfileStore
	table    *table[ai2kTable]
}

func NewAI2K(profiles core.ProfileStore, words WordAI2KDataset, records core.RecordStore,
	persons ActivePersonLog, opts ...Option) *AI2K {
	a := &AI2K{base: newBase(opts), profiles: profiles}
	a.table = newTable(a.now, 0, func(ctx context.Context) (ai2kTable, error) {
		return a.load(ctx, words, records, persons)
	})
	return a
}

func (a *AI2K) Name() string                { return "recall.ai2k" }
func (a *AI2K) RecallType() core.RecallType { return core.RecallAI2K }

func (a *AI2K) load(ctx context.Context, words WordAI2KDataset, records core.RecordStore, persons ActivePersonLog) (ai2kTable, error) {
	w, err := words.WordAI2K(ctx)
	if err != nil {
		return ai2kTable{}, err
	}
	ids, err := persons.ActivePersons(ctx, a.now().Add(-activePersonWindow))
	if err != nil {
		return ai2kTable{}, err
	}
	active := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
	}
	docs, err := records.FindAll(ctx, core.CollectionAI2K, 0)
	if err != nil {
		return ai2kTable{}, err
	}

	packages := make(map[string]ai2kPackage, len(docs))
	for _, d := range docs {
		members := stringSet(conv.Strings(d, "person_ids"))
		n := 0
		for id := range members {
			if _, ok := active[id]; ok {
				n++
			}
		}
		id := conv.String(d, "id")
		packages[id] = ai2kPackage{
			id:      id,
			members: len(members),
			active:  n,
			reason:  core.Reason{Zh: conv.String(d, "reason_zh"), En: conv.String(d, "reason_en")},
			url:     conv.String(d, "url"),
		}
	}
	return ai2kTable{words: w, packages: packages}, nil
}

func (a *AI2K) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	keywords := subscribedKeywords(ctx, a.profiles, rctx.WithKeyword(""))
	if len(keywords) == 0 {
		return core.ItemsByType{}, nil
	}
	tbl, err := a.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, a.Name()).Warn().Err(err).Msg("load ai2k packages failed")
	}

	var items []*core.Item
	for _, kw := range keywords {
		ids, ok := tbl.words[strings.ToLower(strings.TrimSpace(kw))]
		if !ok {
			ids = tbl.words[ai2kDefaultWord]
		}
		for _, id := range ids {
			p, ok := tbl.packages[id]
			if !ok || p.members == 0 || p.active <= 0 {
				continue
			}
			it := a.newItem(p.id, core.ItemAI2K, float64(p.active)/float64(p.members), a.RecallType())
			it.RecallReason = p.reason
			it.PutExtra("url", p.url)
			items = append(items, it)
		}
	}
	items = randutil.Shuffled(a.rand, dedupFirst(items))
	return single(core.ItemAI2K, items[:min(ai2kMaxItems, rctx.Count, len(items))]), nil
}

func stringSet(xs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}

// RandomPerson 是活跃学者池召回：随机抽取最近有动态的学者，h-index 不低于 10，分数为 h-index/1000。
type RandomPerson struct {
	base
	records RecordLoader
	table   *table[[]string]
}

func NewRandomPerson(persons ActivePersonLog, records RecordLoader, opts ...Option) *RandomPerson {
	r := &RandomPerson{base: newBase(opts), records: records}
	r.table = newTable(r.now, 0, func(ctx context.Context) ([]string, error) {
		return persons.ActivePersons(ctx, r.now().Add(-activePersonWindow))
	})
	return r
}

func (r *RandomPerson) Name() string                { return "recall.random_person" }
func (r *RandomPerson) RecallType() core.RecallType { return core.RecallRandomPerson }

func (r *RandomPerson) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	ids, err := r.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, r.Name()).Warn().Err(err).Msg("load active persons failed")
	}
	ids = randutil.Shuffled(r.rand, ids)
	ids = ids[:min(rctx.Count, len(ids))]

	var items []*core.Item
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.records.Materialize(ctx, id, core.ItemPerson, true)
		if err != nil || rec.IsEmpty() {
			continue
		}
		hindex, _, _ := rec.Indices()
		if hindex < minPersonHIndex {
			continue
		}
		it := r.newItem(id, core.ItemPerson, hindex/1000, r.RecallType())
		it.RecallReason = reasonRandomPerson
		items = append(items, it)
	}
	return single(core.ItemPerson, items), nil
}
