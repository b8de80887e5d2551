package recall

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/pkg/score"
)

// 关注学者召回中论文与关注学者的关系
const (
	relationCooperation = "cooperation_scholar"
	relationSimilar     = "similar_scholar"
	relationFollowed    = "followed_scholar"

	tagHighlyCited = "highly_cited_papers"
)

// FollowDataset 是每日的关注学者召回结果，key 为 uid。
type FollowDataset interface {
	Follow(ctx context.Context) (map[string][]datasource.FollowedAuthor, string, error)
}

type followTable struct {
	users map[string][]datasource.FollowedAuthor
	name  string
}

// Follow 是关注学者动态召回：关注学者、其合作学者与相似学者的高引 / 最新论文。
type Follow struct {
	base
	table *table[followTable]
}

func NewFollow(data FollowDataset, opts ...Option) *Follow {
	f := &Follow{base: newBase(opts)}
	f.table = newTable(f.now, 0, func(ctx context.Context) (followTable, error) {
		users, name, err := data.Follow(ctx)
		return followTable{users: users, name: name}, err
	})
	return f
}

func (f *Follow) Name() string                { return "recall.follow" }
func (f *Follow) RecallType() core.RecallType { return core.RecallFollow }

func (f *Follow) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	tbl := f.load(ctx)
	return single(core.ItemPub, f.items(ctx, tbl.users[rctx.UID], tbl.name)), nil
}

// RecallAll 返回数据集中全部用户的结果。
func (f *Follow) RecallAll(ctx context.Context) (map[core.Identity]core.ItemsByType, error) {
	tbl := f.load(ctx)
	out := make(map[core.Identity]core.ItemsByType, len(tbl.users))
	for uid, follows := range tbl.users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if items := f.items(ctx, follows, tbl.name); len(items) > 0 {
			out[core.Identity{UID: uid}] = single(core.ItemPub, items)
		}
	}
	return out, nil
}

func (f *Follow) load(ctx context.Context) followTable {
	tbl, err := f.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, f.Name()).Warn().Err(err).Msg("load follow dataset failed")
	}
	return tbl
}

func (f *Follow) items(ctx context.Context, follows []datasource.FollowedAuthor, name string) []*core.Item {
	var items []*core.Item
	for _, follow := range follows {
		for _, tag := range slices.Sorted(maps.Keys(follow.Papers)) {
			for _, p := range follow.Papers[tag] {
				reason, ok := followReason(follow, tag, p)
				if !ok {
					sourceLog(ctx, f.Name()).Warn().Str("label", p.Label).Str("id", p.PaperID).Msg("unknown follow relation")
					continue
				}
				it := f.newItem(p.PaperID, core.ItemPub, p.Distance, f.RecallType())
				it.RecallReason = reason
				it.RecallSource = name
				items = append(items, it)
			}
		}
	}
	score.StandardizeItems(items)
	return items
}

// followReason 按关系与论文标签生成理由，未知关系返回 false。
func followReason(follow datasource.FollowedAuthor, tag string, p datasource.FollowPaper) (core.Reason, bool) {
	tagZh, tagEn := "最新", "New"
	if tag == tagHighlyCited {
		tagZh, tagEn = "高引", "High Cited"
	}
	personEn := follow.Name
	personZh := orDefault(follow.NameZh, personEn)

	switch p.Label {
	case relationCooperation:
		cooperEn := p.AuthorNameEn
		cooperZh := orDefault(p.AuthorNameZh, cooperEn)
		return core.Reason{
			Zh: fmt.Sprintf("「%s」的合作学者「%s」发表的%s论文", personZh, cooperZh, tagZh),
			En: fmt.Sprintf("%s paper from cooperation scholar 「%s」of your followed 「%s」", tagEn, personEn, cooperEn),
		}, true
	case relationSimilar:
		return core.Reason{
			Zh: fmt.Sprintf("「%s」的相似学者发表的%s论文", personZh, tagZh),
			En: fmt.Sprintf("%s paper from similar scholar of your followed「%s」", tagEn, personEn),
		}, true
	case relationFollowed:
		return core.Reason{
			Zh: fmt.Sprintf("你关注学者「%s」发表的%s论文", personZh, tagZh),
			En: fmt.Sprintf("%s Paper from your Followed Scholar 「%s」", tagEn, personEn),
		}, true
	default:
		return core.Reason{}, false
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
