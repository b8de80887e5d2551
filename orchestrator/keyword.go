package orchestrator

import (
	"context"
	"strings"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/score"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
)

// 关键词推荐参数
const (
	neighbourDiscount = 0.7
	similarityRatio   = 0.2
)

// FetchKeyword 返回关键词推荐，最多 num 个。
//
// 顺序：
//  1. 订阅统计中该关键词的新论文（直接返回，不做衰减）
//  2. 用户关键词缓存
//  3. 公共关键词缓存
//  4. 同步预加载
//
// 2–4 的结果经过 Stage B 后截断。
func (u *Updater) FetchKeyword(ctx context.Context, id core.Identity, keyword string, num int) ([]*core.Item, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	id = id.Canonical()
	if items := u.newlyItems(ctx, id, keyword); len(items) > 0 {
		return items, nil
	}
	if u.strategy.Keyword == KeywordNewlyOnly {
		return nil, nil
	}

	items := u.keywordCache(ctx, keyword, id)
	if len(items) == 0 && !id.IsCold() {
		items = u.keywordCache(ctx, keyword, core.ColdIdentity())
	}
	if len(items) == 0 {
		var err error
		if items, err = u.PreloadKeyword(ctx, keyword, id, defaultKeywordNum); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		logger(ctx, u.strategy.Name).Warn().Str("user", id.UserID()).Str("keyword", keyword).Msg("no keyword recommendations")
		return nil, nil
	}

	if u.deps.StageB != nil {
		items = u.deps.StageB.Apply(ctx, id, items)
	}
	if num > 0 && len(items) > num {
		items = items[:num]
	}
	return items, nil
}

// newlyItems 把订阅统计中的新论文转换为订阅召回候选。
func (u *Updater) newlyItems(ctx context.Context, id core.Identity, keyword string) []*core.Item {
	if u.deps.Newly == nil || id.UID == "" {
		return nil
	}
	newly, err := u.deps.Newly.Newly(ctx, id.UID)
	if err != nil {
		logger(ctx, u.strategy.Name).Warn().Err(err).Str("uid", id.UID).Msg("read subscribe stat failed")
		return nil
	}
	stat, ok := newly[keyword]
	if !ok {
		return nil
	}
	items := make([]*core.Item, 0, len(stat.Example))
	for _, ex := range stat.Example {
		it := core.NewItem(ex.ID, core.ItemPub, ex.Score, core.RecallSubscribe)
		it.RecallReason = recall.ReasonSubscribed
		it.RecallKeyword = keyword
		items = append(items, it)
	}
	return items
}

func (u *Updater) keywordCache(ctx context.Context, keyword string, id core.Identity) []*core.Item {
	var items []*core.Item
	if err := u.deps.Cache.Get(ctx, KeywordKey(keyword, id), &items); err != nil {
		if !core.IsStoreNotFound(err) {
			logger(ctx, u.strategy.Name).Warn().Err(err).Str("keyword", keyword).Msg("read keyword cache failed")
		}
		return nil
	}
	return items
}

// PreloadKeyword 检索关键词及其近邻词，生成关键词推荐并写入用户与公共两个缓存。
//
// 规则：
//   - 中文关键词先翻译
//   - 主检索取 num 个；每个近邻词取 num/(2+近邻数) 个，分数 × 0.7
//   - 按 (id, type) 去重后丢弃记录库中不存在的论文，再做 Stage A
//   - 最终分数 = 0.2·相似度(关键词, 标题) + 0.8·分数，按最终分数降序写入
//   - 缓存 key 使用请求中的原始关键词
func (u *Updater) PreloadKeyword(ctx context.Context, keyword string, id core.Identity, num int) ([]*core.Item, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || u.deps.Search == nil {
		return nil, nil
	}
	if num <= 0 {
		num = defaultKeywordNum
	}
	id = id.Canonical()
	log := logger(ctx, u.strategy.Name).With().Str("keyword", keyword).Str("user", id.UserID()).Logger()

	query := recall.Translate(ctx, u.deps.Translator, keyword)
	neighbours := u.deps.Neighbours.Of(query)

	hits, err := u.deps.Search.Search(ctx, query, num)
	if err != nil {
		return nil, core.WrapDomainError("orchestrator", core.ErrorCodeUnavailable, "keyword search failed", err)
	}
	items := hitItems(hits, keyword, 1)
	if limit := num / (2 + len(neighbours)); limit > 0 {
		for _, w := range neighbours {
			nh, err := u.deps.Search.Search(ctx, w, limit)
			if err != nil {
				log.Warn().Err(err).Str("neighbour", w).Msg("neighbour search failed")
				continue
			}
			items = append(items, hitItems(nh, keyword, neighbourDiscount)...)
		}
	}

	items = rerank.MergeDuplicates(items, nil)
	items = u.removeNotFound(ctx, items)
	if len(items) == 0 {
		log.Warn().Msg("no keyword candidates after removing missing records")
		return nil, nil
	}
	if u.deps.Resorter != nil {
		items = u.deps.Resorter.Resort(ctx, items, id)
	}
	if len(items) == 0 {
		log.Warn().Msg("no keyword candidates after resort")
		return nil, nil
	}

	sims := u.titleSimilarities(ctx, query, items)
	for i, it := range items {
		it.Score = similarityRatio*sims[i] + (1-similarityRatio)*it.Score
	}
	rerank.SortByScore(items)

	if !id.IsCold() {
		if err := u.deps.Cache.SetEX(ctx, KeywordKey(keyword, id), items, KeywordTTL); err != nil {
			return items, err
		}
	}
	if err := u.deps.Cache.SetEX(ctx, KeywordKey(keyword, core.ColdIdentity()), items, KeywordTTL); err != nil {
		return items, err
	}
	log.Info().Int("items", len(items)).Int("neighbours", len(neighbours)).Msg("keyword recommendations preloaded")
	return items, nil
}

func hitItems(hits []core.SearchHit, keyword string, weight float64) []*core.Item {
	items := make([]*core.Item, 0, len(hits))
	for _, h := range hits {
		it := core.NewItem(h.ID, core.ItemPub, h.Score*weight, core.RecallSubscribe)
		it.RecallKeyword = keyword
		it.PutExtra("title", h.Title)
		items = append(items, it)
	}
	return items
}

// removeNotFound 丢弃记录库中不存在的论文，其他类型保留；记录库不可用时原样返回。
func (u *Updater) removeNotFound(ctx context.Context, items []*core.Item) []*core.Item {
	if u.deps.Records == nil {
		return items
	}
	var ids []string
	for _, it := range items {
		if it.Type == core.ItemPub {
			ids = append(ids, it.ID)
		}
	}
	if len(ids) == 0 {
		return items
	}
	docs, err := u.deps.Records.FindByIDs(ctx, core.CollectionPub, ids)
	if err != nil {
		logger(ctx, u.strategy.Name).Warn().Err(err).Int("ids", len(ids)).Msg("find pubs failed")
		return items
	}
	found := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if s, ok := d["id"].(string); ok {
			found[s] = struct{}{}
		}
	}
	out := items[:0:0]
	for _, it := range items {
		if it.Type == core.ItemPub {
			if _, ok := found[it.ID]; !ok {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

// titleSimilarities 返回 query 与每个候选标题的向量余弦，没有标题或向量服务不可用时为 0。
func (u *Updater) titleSimilarities(ctx context.Context, query string, items []*core.Item) []float64 {
	sims := make([]float64, len(items))
	if u.deps.Embedding == nil {
		return sims
	}
	var (
		texts []string
		index []int
	)
	for i, it := range items {
		if t, _ := it.Extra["title"].(string); strings.TrimSpace(t) != "" {
			texts = append(texts, t)
			index = append(index, i)
		}
	}
	if len(texts) == 0 {
		return sims
	}
	qv, err := u.deps.Embedding.Embed(ctx, query)
	if err != nil {
		logger(ctx, u.strategy.Name).Warn().Err(err).Msg("embed keyword failed")
		return sims
	}
	vecs, err := u.deps.Embedding.EmbedBatch(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logger(ctx, u.strategy.Name).Warn().Err(err).Int("texts", len(texts)).Msg("embed titles failed")
		return sims
	}
	for j, i := range index {
		sims[i] = score.Cosine(qv, vecs[j])
	}
	return sims
}
