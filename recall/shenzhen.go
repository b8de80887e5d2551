package recall

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/randutil"
	"github.com/louhangyu/zhipu/pkg/score"
)

const (
	domainSearchK   = 50
	domainMaxPapers = 1000
)

// domainPaper 是领域关键词检索到的一篇论文。
type domainPaper struct {
	domain string
	pubID  string
}

// ShenzhenNewly 是领域新论文召回：每个领域关键词检索 50 篇，去重后最多保留 1000 篇，
// 每次随机抽取，分数为名次分后标准化。
type ShenzhenNewly struct {
	base
	table *table[[]domainPaper]
}

func NewShenzhenNewly(search core.SearchService, domains []string, opts ...Option) *ShenzhenNewly {
	s := &ShenzhenNewly{base: newBase(opts)}
	s.table = newTable(s.now, 0, func(ctx context.Context) ([]domainPaper, error) {
		return loadDomainPapers(ctx, search, domains)
	})
	return s
}

func (s *ShenzhenNewly) Name() string                { return "recall.shenzhen_newly" }
func (s *ShenzhenNewly) RecallType() core.RecallType { return core.RecallShenzhenNewly }

func loadDomainPapers(ctx context.Context, search core.SearchService, domains []string) ([]domainPaper, error) {
	seen := make(map[string]struct{})
	var out []domainPaper
	for _, d := range domains {
		hits, err := search.Search(ctx, d, domainSearchK)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			sourceLog(ctx, "recall.shenzhen_newly").Warn().Err(err).Str("domain", d).Msg("search domain failed")
			continue
		}
		for _, h := range hits {
			if _, ok := seen[h.ID]; ok {
				continue
			}
			seen[h.ID] = struct{}{}
			out = append(out, domainPaper{domain: d, pubID: h.ID})
		}
	}
	return out[:min(domainMaxPapers, len(out))], nil
}

func (s *ShenzhenNewly) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	papers, err := s.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, s.Name()).Warn().Err(err).Msg("load domain papers failed")
	}
	papers = randutil.Shuffled(s.rand, papers)
	papers = papers[:min(rctx.Count, len(papers))]
	if len(papers) == 0 {
		return core.ItemsByType{}, nil
	}

	items := make([]*core.Item, 0, len(papers))
	for i, p := range papers {
		it := s.newItem(p.pubID, core.ItemPub, score.RankScore(i, rctx.Count), s.RecallType())
		it.RecallSource = "stream"
		it.RecallKeyword = p.domain
		items = append(items, it)
	}
	score.StandardizeItems(items)
	return single(core.ItemPub, items), nil
}
