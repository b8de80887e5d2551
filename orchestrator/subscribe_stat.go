package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/score"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/store"
)

// 订阅统计参数
const (
	SubscribeStatTTL     = 24 * time.Hour
	newlyWindow          = 24 * time.Hour
	newlyLimit           = 100
	newlyMinSimilarity   = 0.01
	subscribeStatKeyBase = "subscribe_stat_"
)

// SubscribeStatKey 返回用户订阅统计的缓存 key。
func SubscribeStatKey(uid string) string { return subscribeStatKeyBase + uid }

// NewlyPaperLog 查询近期入库的论文。
type NewlyPaperLog interface {
	NewlyPapers(ctx context.Context, keyword string, since time.Time, year, limit int) ([]core.NewlyPaper, error)
}

// SubscribeStat 统计用户每个订阅关键词的新论文。
//
// 规则：
//   - 统计窗口从上次统计的起点继续，没有时为最近一天
//   - 只统计当年及以后的论文，最多 100 篇
//   - 示例按 相似度(关键词, 标题) 降序；没有向量服务时相似度为 0.01
//   - 读取时丢弃起点早于一天前的关键词
type SubscribeStat struct {
	cache      *store.Cache
	profiles   core.ProfileStore
	papers     NewlyPaperLog
	translator core.Translator
	embedding  core.EmbeddingService
	now        func() time.Time
}

func NewSubscribeStat(cache *store.Cache, profiles core.ProfileStore, papers NewlyPaperLog,
	translator core.Translator, embedding core.EmbeddingService) *SubscribeStat {
	return &SubscribeStat{
		cache:      cache,
		profiles:   profiles,
		papers:     papers,
		translator: translator,
		embedding:  embedding,
		now:        time.Now,
	}
}

// WithClock 替换当前时间（测试使用）
func (s *SubscribeStat) WithClock(now func() time.Time) *SubscribeStat {
	s.now = now
	return s
}

// Newly 只读缓存。
func (s *SubscribeStat) Newly(ctx context.Context, uid string) (map[string]core.KeywordNewly, error) {
	out := make(map[string]core.KeywordNewly)
	if uid == "" {
		return out, nil
	}
	var raw map[string]core.KeywordNewly
	if err := s.cache.Get(ctx, SubscribeStatKey(uid), &raw); err != nil {
		if core.IsStoreNotFound(err) || core.IsDataIntegrity(err) {
			return out, nil
		}
		return out, err
	}
	expire := float64(s.now().Add(-newlyWindow).Unix())
	for kw, v := range raw {
		if v.TS < expire {
			continue
		}
		out[kw] = v
	}
	return out, nil
}

// Train 重新统计全部订阅关键词。
func (s *SubscribeStat) Train(ctx context.Context, uid string, save bool) (map[string]core.KeywordNewly, error) {
	out := make(map[string]core.KeywordNewly)
	if uid == "" || s.profiles == nil {
		return out, nil
	}
	p, err := s.profiles.Profile(ctx, uid)
	if err != nil {
		return out, fmt.Errorf("orchestrator: subscribe stat profile: %w", err)
	}
	prev, err := s.Newly(ctx, uid)
	if err != nil {
		logger(ctx, "subscribe_stat").Warn().Err(err).Str("uid", uid).Msg("read previous stat failed")
	}

	for _, kw := range p.Keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		since := s.now().Add(-newlyWindow)
		if old, ok := prev[kw]; ok && old.TS > 0 {
			since = time.Unix(int64(old.TS), 0)
		}
		v, err := s.keywordNewly(ctx, kw, since)
		if err != nil {
			logger(ctx, "subscribe_stat").Warn().Err(err).Str("uid", uid).Str("keyword", kw).Msg("newly papers failed")
			continue
		}
		out[kw] = v
	}

	if !save {
		return out, nil
	}
	if len(out) == 0 {
		if err := s.cache.Delete(ctx, SubscribeStatKey(uid)); err != nil && !core.IsStoreNotFound(err) {
			return out, err
		}
		return out, nil
	}
	return out, s.cache.SetEX(ctx, SubscribeStatKey(uid), out, SubscribeStatTTL)
}

// Omit 删除一个关键词的统计（用户已看过该关键词的新论文）。
func (s *SubscribeStat) Omit(ctx context.Context, uid, keyword string) error {
	if uid == "" || keyword == "" {
		return nil
	}
	data, err := s.Newly(ctx, uid)
	if err != nil {
		return err
	}
	if _, ok := data[keyword]; !ok {
		return nil
	}
	delete(data, keyword)
	return s.cache.SetEX(ctx, SubscribeStatKey(uid), data, SubscribeStatTTL)
}

func (s *SubscribeStat) keywordNewly(ctx context.Context, keyword string, since time.Time) (core.KeywordNewly, error) {
	query := recall.Translate(ctx, s.translator, keyword)
	papers, err := s.papers.NewlyPapers(ctx, query, since, s.now().Year(), newlyLimit)
	if err != nil {
		return core.KeywordNewly{}, err
	}
	result := core.KeywordNewly{
		OriginalCount: len(papers),
		TS:            float64(since.Unix()),
		Example:       make([]core.NewlyExample, 0, len(papers)),
	}
	sims := s.similarities(ctx, keyword, papers)
	for i, p := range papers {
		result.Example = append(result.Example, core.NewlyExample{ID: p.PaperID, Score: sims[i], Title: p.Title})
	}
	sort.SliceStable(result.Example, func(i, j int) bool { return result.Example[i].Score > result.Example[j].Score })
	result.Count = len(result.Example)
	return result, nil
}

func (s *SubscribeStat) similarities(ctx context.Context, keyword string, papers []core.NewlyPaper) []float64 {
	sims := make([]float64, len(papers))
	for i := range sims {
		sims[i] = newlyMinSimilarity
	}
	if s.embedding == nil || len(papers) == 0 {
		return sims
	}
	titles := make([]string, len(papers))
	for i, p := range papers {
		titles[i] = p.Title
		if strings.TrimSpace(p.Title) == "" {
			titles[i] = p.PaperID
		}
	}
	kv, err := s.embedding.Embed(ctx, keyword)
	if err != nil {
		return sims
	}
	vecs, err := s.embedding.EmbedBatch(ctx, titles)
	if err != nil || len(vecs) != len(titles) {
		return sims
	}
	for i, v := range vecs {
		sims[i] = score.Cosine(kv, v)
	}
	return sims
}

var _ core.NewlyStats = (*SubscribeStat)(nil)
