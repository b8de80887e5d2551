package recall

import (
	"context"
	"strings"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

// neighbourDiscount 是关联词命中相对订阅词命中的分数折扣。
const neighbourDiscount = 0.7

// Subscribe 是订阅关键词检索召回：订阅词与其关联词分别检索，关联词命中打 0.7 折。
type Subscribe struct {
	base
	profiles   core.ProfileStore
	search     core.SearchService
	translator core.Translator
	neighbours Neighbours
	records    RecordLoader
}

func NewSubscribe(profiles core.ProfileStore, search core.SearchService, translator core.Translator,
	neighbours Neighbours, records RecordLoader, opts ...Option) *Subscribe {
	return &Subscribe{
		base:       newBase(opts),
		profiles:   profiles,
		search:     search,
		translator: translator,
		neighbours: neighbours,
		records:    records,
	}
}

func (s *Subscribe) Name() string                { return "recall.subscribe" }
func (s *Subscribe) RecallType() core.RecallType { return core.RecallSubscribe }

func (s *Subscribe) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	keywords := subscribedKeywords(ctx, s.profiles, rctx)
	if len(keywords) == 0 {
		return core.ItemsByType{}, nil
	}

	k := perWord(rctx.Count, len(keywords))
	var out []*core.Item
	for _, kw := range keywords {
		type query struct {
			word     string
			discount float64
		}
		queries := []query{{word: kw, discount: 1}}
		for _, n := range s.neighbours.Of(kw) {
			queries = append(queries, query{word: n, discount: neighbourDiscount})
		}
		for _, q := range queries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hits, err := s.search.Search(ctx, Translate(ctx, s.translator, q.word), k)
			if err != nil {
				sourceLog(ctx, s.Name()).Warn().Err(err).Str("word", q.word).Msg("search failed")
				continue
			}
			for _, h := range hits {
				it := s.newItem(h.ID, core.ItemPub, h.Score*q.discount, s.RecallType())
				it.RecallReason = pubReason(ctx, s.records, h.ID, kw, false)
				it.RecallSource = "stream"
				it.RecallKeyword = kw
				out = append(out, it)
			}
		}
	}
	return single(core.ItemPub, dedupFirst(out)), nil
}

// KGDataset 是知识图谱关键词到论文的映射。
type KGDataset interface {
	SubscribeKG(ctx context.Context) (map[string][]string, error)
}

// SubscribeKG 是订阅关键词的知识图谱召回：关键词关联论文随机抽取，固定 0.1 分。
type SubscribeKG struct {
	base
	profiles   core.ProfileStore
	translator core.Translator
	records    RecordLoader
	table      *table[map[string][]string]
}

func NewSubscribeKG(profiles core.ProfileStore, translator core.Translator, data KGDataset,
	records RecordLoader, opts ...Option) *SubscribeKG {
	s := &SubscribeKG{
		base:       newBase(opts),
		profiles:   profiles,
		translator: translator,
		records:    records,
	}
	s.table = newTable(s.now, 0, data.SubscribeKG)
	return s
}

func (s *SubscribeKG) Name() string                { return "recall.subscribe_kg" }
func (s *SubscribeKG) RecallType() core.RecallType { return core.RecallSubscribeKG }

func (s *SubscribeKG) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	keywords := subscribedKeywords(ctx, s.profiles, rctx)
	if len(keywords) == 0 {
		return core.ItemsByType{}, nil
	}
	kg, err := s.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, s.Name()).Warn().Err(err).Msg("load kg table failed")
	}
	if len(kg) == 0 {
		return core.ItemsByType{}, nil
	}

	k := perWord(rctx.Count, len(keywords))
	var out []*core.Item
	for _, kw := range keywords {
		ids := randutil.Shuffled(s.rand, kg[Translate(ctx, s.translator, kw)])
		for _, id := range ids[:min(k, len(ids))] {
			it := s.newItem(id, core.ItemPub, 0.1, s.RecallType())
			it.RecallReason = pubReason(ctx, s.records, id, kw, true)
			it.RecallSource = "stream"
			it.RecallKeyword = kw
			out = append(out, it)
		}
	}
	return single(core.ItemPub, dedupFirst(out)), nil
}

// OAGDataset 是每日的关键词语义召回表。
type OAGDataset interface {
	SubscribeOAG(ctx context.Context) (map[string][]datasource.OAGPaper, string, error)
}

type oagTable struct {
	papers map[string][]datasource.OAGPaper
	name   string
}

// SubscribeOAG 是订阅关键词的语义召回，只服务登录用户，分数为语义距离。
type SubscribeOAG struct {
	base
	profiles   core.ProfileStore
	translator core.Translator
	records    RecordLoader
	table      *table[oagTable]
}

func NewSubscribeOAG(profiles core.ProfileStore, translator core.Translator, data OAGDataset,
	records RecordLoader, opts ...Option) *SubscribeOAG {
	s := &SubscribeOAG{
		base:       newBase(opts),
		profiles:   profiles,
		translator: translator,
		records:    records,
	}
	s.table = newTable(s.now, 0, func(ctx context.Context) (oagTable, error) {
		papers, name, err := data.SubscribeOAG(ctx)
		return oagTable{papers: papers, name: name}, err
	})
	return s
}

func (s *SubscribeOAG) Name() string                { return "recall.subscribe_oag" }
func (s *SubscribeOAG) RecallType() core.RecallType { return core.RecallSubscribeOAG }

func (s *SubscribeOAG) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	if rctx.Type() != core.UserUID {
		return core.ItemsByType{}, nil
	}
	tbl, err := s.table.Get(ctx)
	if err != nil {
		sourceLog(ctx, s.Name()).Warn().Err(err).Msg("load oag table failed")
	}
	if len(tbl.papers) == 0 {
		return core.ItemsByType{}, nil
	}
	keywords := subscribedKeywords(ctx, s.profiles, rctx.WithKeyword(""))
	if len(keywords) == 0 {
		return core.ItemsByType{}, nil
	}

	var out []*core.Item
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, p := range tbl.papers[strings.ToLower(Translate(ctx, s.translator, kw))] {
			it := s.newItem(p.PaperID, core.ItemPub, p.Distance, s.RecallType())
			it.RecallReason = pubReason(ctx, s.records, p.PaperID, kw, false)
			it.RecallSource = tbl.name
			it.RecallKeyword = kw
			out = append(out, it)
		}
	}
	return single(core.ItemPub, out), nil
}
