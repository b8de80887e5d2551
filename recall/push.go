package recall

import (
	"context"
	"sort"
	"strings"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

const (
	pushSimilarityWeight = 0.1
	pushNewWeight        = 0.8
	pushFollowScore      = 0.5
)

// PushDataset 是推送策略使用的每日数据集。
type PushDataset interface {
	PushKeywords(ctx context.Context, period datasource.PushPeriod) (map[string][]datasource.PushPaper, string, error)
	PushFollow(ctx context.Context) (map[string][]datasource.FollowPushPaper, string, error)
}

type pushTable struct {
	papers map[string][]datasource.PushPaper
	name   string
}

// PushKeyword 是推送的订阅词召回：日 / 周数据集中订阅词对应的论文随机抽取，
// 分数为相似度 × 0.1。
type PushKeyword struct {
	base
	recallType core.RecallType
	profiles   core.ProfileStore
	records    RecordLoader
	table      *table[pushTable]
}

// NewPushDaily 创建每日推送召回（daily-{date}.json）
func NewPushDaily(profiles core.ProfileStore, data PushDataset, records RecordLoader, opts ...Option) *PushKeyword {
	return newPushKeyword(profiles, data, records, datasource.PushDaily, core.RecallPushHot, opts)
}

// NewPushWeekly 创建每周推送召回（weekly-{date}.json）
func NewPushWeekly(profiles core.ProfileStore, data PushDataset, records RecordLoader, opts ...Option) *PushKeyword {
	return newPushKeyword(profiles, data, records, datasource.PushWeekly, core.RecallPushWeek, opts)
}

func newPushKeyword(profiles core.ProfileStore, data PushDataset, records RecordLoader,
	period datasource.PushPeriod, rt core.RecallType, opts []Option) *PushKeyword {
	p := &PushKeyword{base: newBase(opts), recallType: rt, profiles: profiles, records: records}
	p.table = newTable(p.now, 0, func(ctx context.Context) (pushTable, error) {
		papers, name, err := data.PushKeywords(ctx, period)
		return pushTable{papers: papers, name: name}, err
	})
	return p
}

func (p *PushKeyword) Name() string                { return "recall." + string(p.recallType) }
func (p *PushKeyword) RecallType() core.RecallType { return p.recallType }

func (p *PushKeyword) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	keywords := subscribedKeywords(ctx, p.profiles, rctx.WithKeyword(""))
	if len(keywords) == 0 {
		return core.ItemsByType{}, nil
	}
	tbl, err := p.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, p.Name()).Warn().Err(err).Msg("load push dataset failed")
	}

	k := perWord(rctx.Count, len(keywords))
	var out []*core.Item
	for _, kw := range keywords {
		papers := randutil.Shuffled(p.rand, tbl.papers[strings.ToLower(strings.TrimSpace(kw))])
		for _, paper := range papers[:min(k, len(papers))] {
			it := p.newItem(paper.PID, core.ItemPub, paper.Similarity*pushSimilarityWeight, p.recallType)
			it.RecallReason = pubReason(ctx, p.records, paper.PID, kw, true)
			it.RecallSource = tbl.name
			it.RecallKeyword = kw
			out = append(out, it)
		}
	}
	return single(core.ItemPub, dedupFirst(out)), nil
}

// PushNew 是订阅新论文推送召回：订阅统计中的新论文分数 × 0.8，再按曝光 / 点击衰减。
type PushNew struct {
	base
	stats    core.NewlyStats
	discount Discounter
}

func NewPushNew(stats core.NewlyStats, discount Discounter, opts ...Option) *PushNew {
	return &PushNew{base: newBase(opts), stats: stats, discount: discount}
}

func (p *PushNew) Name() string                { return "recall.push_new" }
func (p *PushNew) RecallType() core.RecallType { return core.RecallPushNew }

func (p *PushNew) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	newly, err := p.stats.Train(ctx, rctx.UID, false)
	if err != nil {
		sourceLog(ctx, p.Name()).Warn().Err(err).Str("uid", rctx.UID).Msg("subscribe stat failed")
		return core.ItemsByType{}, nil
	}

	keywords := make([]string, 0, len(newly))
	for kw := range newly {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	var items []*core.Item
	for _, kw := range keywords {
		for _, ex := range newly[kw].Example {
			it := p.newItem(ex.ID, core.ItemPub, ex.Score*pushNewWeight, p.RecallType())
			it.RecallKeyword = kw
			items = append(items, it)
		}
	}
	if p.discount != nil {
		items = p.discount.Apply(ctx, core.Identity{UID: rctx.UID}, items)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return single(core.ItemPub, items[:min(rctx.Count, len(items))]), nil
}

type pushFollowTable struct {
	users map[string][]datasource.FollowPushPaper
	name  string
}

// PushFollow 是关注学者新论文推送召回，固定 0.5 分。
type PushFollow struct {
	base
	table *table[pushFollowTable]
}

func NewPushFollow(data PushDataset, opts ...Option) *PushFollow {
	p := &PushFollow{base: newBase(opts)}
	p.table = newTable(p.now, 0, func(ctx context.Context) (pushFollowTable, error) {
		users, name, err := data.PushFollow(ctx)
		return pushFollowTable{users: users, name: name}, err
	})
	return p
}

func (p *PushFollow) Name() string                { return "recall.push_follow" }
func (p *PushFollow) RecallType() core.RecallType { return core.RecallPushFollow }

func (p *PushFollow) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	tbl, err := p.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, p.Name()).Warn().Err(err).Msg("load push follow dataset failed")
	}
	papers := tbl.users[rctx.UID]
	items := make([]*core.Item, 0, len(papers))
	for _, paper := range papers {
		it := p.newItem(paper.PaperID, core.ItemPub, pushFollowScore, p.RecallType())
		it.RecallSource = tbl.name
		it.PutExtra("id_of_followed_author", paper.AuthorID)
		it.PutExtra("name_of_followed_author", paper.AuthorName)
		it.PutExtra("chinese_name_of_followed_author", paper.AuthorNameZh)
		items = append(items, it)
	}
	return single(core.ItemPub, items), nil
}
