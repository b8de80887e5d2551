package recall

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

const searchHistoryCount = 10

// QueryLog 读取用户最近的搜索记录。
type QueryLog interface {
	RecentQueries(ctx context.Context, id core.Identity, limit int) ([]core.QueryLog, error)
}

// weightedQuery 是按时间衰减累计权重后的一个搜索词。
type weightedQuery struct {
	Query  string
	Weight float64
	Latest time.Time
}

// Search 是搜索历史召回：最近 10 次搜索按查询词合并，
// 每次搜索贡献 exp(−sqrt(age_minutes/60)) 的权重，命中分数乘以查询词权重。
type Search struct {
	base
	queries    QueryLog
	search     core.SearchService
	translator core.Translator
}

func NewSearch(queries QueryLog, search core.SearchService, translator core.Translator, opts ...Option) *Search {
	return &Search{
		base:       newBase(opts),
		queries:    queries,
		search:     search,
		translator: translator,
	}
}

func (s *Search) Name() string                { return "recall.search" }
func (s *Search) RecallType() core.RecallType { return core.RecallSearch }

func (s *Search) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID || !textutil.IsObjectID(rctx.UID) {
		return core.ItemsByType{}, nil
	}
	logs, err := s.queries.RecentQueries(ctx, core.Identity{UID: rctx.UID}, searchHistoryCount)
	if err != nil {
		sourceLog(ctx, s.Name()).Warn().Err(err).Str("uid", rctx.UID).Msg("load search history failed")
		return core.ItemsByType{}, nil
	}
	queries := weighQueries(logs, s.now())
	if len(queries) == 0 {
		return core.ItemsByType{}, nil
	}

	k := perWord(rctx.Count, len(queries))
	var out []*core.Item
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := s.search.Search(ctx, Translate(ctx, s.translator, q.Query), k)
		if err != nil {
			sourceLog(ctx, s.Name()).Warn().Err(err).Str("query", q.Query).Msg("search failed")
			continue
		}
		for _, h := range hits {
			it := s.newItem(h.ID, core.ItemPub, h.Score*q.Weight, s.RecallType())
			it.RecallReason = reasonSearch
			it.RecallSource = "stream"
			it.PutExtra("recall_query", q.Query)
			out = append(out, it)
		}
	}
	return single(core.ItemPub, out), nil
}

// weighQueries 按查询词合并搜索记录并按权重降序，权重相同保持首次出现顺序。
func weighQueries(logs []core.QueryLog, now time.Time) []weightedQuery {
	index := make(map[string]int, len(logs))
	var out []weightedQuery
	for _, l := range logs {
		q := strings.TrimSpace(l.Query)
		if q == "" {
			continue
		}
		age := math.Max(0, now.Sub(l.CreatedAt).Minutes())
		w := math.Exp(-math.Sqrt(age / 60))
		i, ok := index[q]
		if !ok {
			index[q] = len(out)
			out = append(out, weightedQuery{Query: q, Weight: w, Latest: l.CreatedAt})
			continue
		}
		out[i].Weight += w
		if l.CreatedAt.After(out[i].Latest) {
			out[i].Latest = l.CreatedAt
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// SubjectKeywordLog 读取学科到关键词列表的映射。
type SubjectKeywordLog interface {
	SubjectKeywords(ctx context.Context) (map[string][]string, error)
}

// Subject 是订阅学科召回：学科展开为关键词后分别检索。
type Subject struct {
	base
	profiles core.ProfileStore
	search   core.SearchService
	table    *table[map[string][]string]
}

func NewSubject(profiles core.ProfileStore, subjects SubjectKeywordLog, search core.SearchService, opts ...Option) *Subject {
	s := &Subject{
		base:     newBase(opts),
		profiles: profiles,
		search:   search,
	}
	s.table = newTable(s.now, 0, subjects.SubjectKeywords)
	return s
}

func (s *Subject) Name() string                { return "recall.subject" }
func (s *Subject) RecallType() core.RecallType { return core.RecallSubject }

func (s *Subject) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	p := loadProfile(ctx, s.profiles, rctx)
	if p == nil || strings.TrimSpace(p.Subject) == "" {
		return core.ItemsByType{}, nil
	}
	subject := strings.TrimSpace(p.Subject)

	table, err := s.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, s.Name()).Warn().Err(err).Msg("load subject keywords failed")
	}
	words := textutil.Dedup(table[strings.ToLower(subject)])
	if len(words) == 0 {
		words = []string{subject}
	}

	reason := core.Reason{
		Zh: fmt.Sprintf("「%s」学科优质论文", subject),
		En: fmt.Sprintf("「%s」 Subject Good Paper", subject),
	}
	k := perWord(rctx.Count, len(words))
	var out []*core.Item
	for _, w := range words {
		hits, err := s.search.Search(ctx, w, k)
		if err != nil {
			sourceLog(ctx, s.Name()).Warn().Err(err).Str("word", w).Msg("search failed")
			return core.ItemsByType{}, nil
		}
		for _, h := range hits {
			it := s.newItem(h.ID, core.ItemPub, h.Score, s.RecallType())
			it.RecallReason = reason
			it.RecallSource = "stream"
			out = append(out, it)
		}
	}
	return single(core.ItemPub, out), nil
}
