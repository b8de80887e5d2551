// Package recall 是推荐候选的召回源：每个召回源从一类数据（订阅、行为、热点、榜单…）
// 为一个用户产出按物品类型分组的打分候选。
package recall

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/randutil"
	"github.com/louhangyu/zhipu/pkg/textutil"
)

// Source 表示一个召回源。
//
// 约定：
//   - 召回源构造后不可变，依赖在构造时注入，可被多个 goroutine 并发调用
//   - 没有结果时返回空 map
//   - 上游不可达时记录日志并返回空 map，只有 ctx 取消才返回错误
type Source interface {
	Name() string
	RecallType() core.RecallType
	Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error)
}

// BatchSource 是一次产出全部用户结果的召回源（离线数据集按用户分组）。
// 训练任务用它发现活跃用户之外、数据集里出现的用户。
type BatchSource interface {
	Source
	RecallAll(ctx context.Context) (map[core.Identity]core.ItemsByType, error)
}

// RecordLoader 读取物品的物化记录，用于按论文标签生成召回理由。
type RecordLoader interface {
	Materialize(ctx context.Context, id string, typ core.ItemType, useCache bool) (aggregate.Record, error)
}

// Discounter 按曝光 / 点击历史衰减候选分数。
type Discounter interface {
	Apply(ctx context.Context, id core.Identity, items []*core.Item) []*core.Item
}

// base 是召回源共用的时钟与随机源。
type base struct {
	now  func() time.Time
	rand randutil.Rand
}

// Option 是召回源的通用配置选项。
type Option func(*base)

// WithClock 替换当前时间（测试使用）
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithRand 注入随机源，测试时使用固定种子
func WithRand(r randutil.Rand) Option {
	return func(b *base) { b.rand = r }
}

func newBase(opts []Option) base {
	b := base{now: time.Now, rand: randutil.NewTimeSeeded()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) newItem(id string, typ core.ItemType, score float64, rt core.RecallType) *core.Item {
	return &core.Item{
		ID:         id,
		Type:       typ,
		Score:      score,
		RecallType: rt,
		RecallTime: b.now().Format(core.DateTimeLayout),
	}
}

func sourceLog(ctx context.Context, name string) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("component", "recall").Str("source", name).Logger()
	return &l
}

// subscribedKeywords 返回召回使用的订阅词：请求关键词优先，否则读取登录用户的订阅。
func subscribedKeywords(ctx context.Context, profiles core.ProfileStore, rctx *core.RecommendContext) []string {
	if kw := strings.TrimSpace(rctx.Keyword); kw != "" {
		return []string{kw}
	}
	p := loadProfile(ctx, profiles, rctx)
	if p == nil {
		return nil
	}
	return textutil.Dedup(p.Keywords)
}

// loadProfile 只为合法 uid 读取画像，失败返回 nil。
func loadProfile(ctx context.Context, profiles core.ProfileStore, rctx *core.RecommendContext) *core.UserProfile {
	if profiles == nil || rctx.Type() != core.UserUID || !textutil.IsObjectID(rctx.UID) {
		return nil
	}
	p, err := profiles.Profile(ctx, rctx.UID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("uid", rctx.UID).Msg("load profile failed")
		return nil
	}
	return p
}

// Translate 把中文翻译为英文，非中文或翻译失败时原样返回。
func Translate(ctx context.Context, tr core.Translator, word string) string {
	word = strings.TrimSpace(word)
	if tr == nil || !textutil.IsChinese(word) {
		return word
	}
	en, err := tr.Translate(ctx, word, "en")
	if err != nil || strings.TrimSpace(en) == "" {
		logging.Ctx(ctx).Warn().Err(err).Str("word", word).Msg("translate failed")
		return word
	}
	return strings.TrimSpace(en)
}

// perWord 把 count 均分给 n 个词，至少为 1。
func perWord(count, n int) int {
	if n <= 0 {
		return count
	}
	return max(1, count/n)
}

// dedupFirst 按 (id, type) 去重，保留首次出现的候选。
func dedupFirst(items []*core.Item) []*core.Item {
	seen := make(map[core.ItemKey]struct{}, len(items))
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Key()]; ok {
			continue
		}
		seen[it.Key()] = struct{}{}
		out = append(out, it)
	}
	return out
}

// single 把一组候选包装为只含一个类型的结果，空列表返回空 map。
func single(typ core.ItemType, items []*core.Item) core.ItemsByType {
	out := core.ItemsByType{}
	out.Add(typ, items...)
	return out
}
