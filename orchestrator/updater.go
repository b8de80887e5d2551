package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
)

// refreshRecallTypes 是请求触发的非关键词刷新所更新的召回类型。
var refreshRecallTypes = []core.RecallType{
	core.RecallSubscribe,
	core.RecallSubscribeOAG,
	core.RecallSubscribeKG,
}

// Updater 是一个策略的在线读写：读取推荐集合、增量更新、关键词推荐。
//
// 状态：
//
//	无缓存 → 冷启动兜底 → 训练写入 → 过期 → 刷新
//
// 刷新失败时保留旧缓存。
type Updater struct {
	strategy *Strategy
	deps     *Deps
}

func NewUpdater(s *Strategy, deps *Deps) *Updater {
	return &Updater{strategy: s, deps: deps}
}

// Strategy 返回更新器所属的策略。
func (u *Updater) Strategy() *Strategy { return u.strategy }

// LoadSet 读取用户的推荐集合，不存在时返回 core.ErrStoreNotFound。
func (u *Updater) LoadSet(ctx context.Context, id core.Identity) (*core.RecommendationSet, error) {
	var set core.RecommendationSet
	if err := u.deps.Cache.Get(ctx, u.strategy.NonKeywordKey(id), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// FetchNonKeyword 读取用户的推荐集合，缺失或为空时使用冷启动集合。
// 返回的候选保持缓存中的顺序，未做曝光衰减。
func (u *Updater) FetchNonKeyword(ctx context.Context, id core.Identity) []*core.Item {
	log := logger(ctx, u.strategy.Name)
	if !id.IsCold() {
		set, err := u.LoadSet(ctx, id)
		switch {
		case err == nil && len(set.Rec) > 0:
			return set.Rec
		case err != nil && !core.IsStoreNotFound(err):
			log.Warn().Err(err).Str("user", id.UserID()).Msg("read user recommendations failed")
		}
	}
	set, err := u.LoadSet(ctx, core.ColdIdentity())
	if err != nil {
		log.Warn().Err(err).Str("user", id.UserID()).Msg("no cold recommendations")
		return nil
	}
	return set.Rec
}

// UpdateNonKeyword 只为登录用户重新召回 UpdateSources（或其中 only 指定的召回类型），
// 替换集合中这些召回类型的旧结果后写回，返回新召回的候选数。
//
// 规则：
//   - 旧集合缺失时从空集合开始
//   - 只有新召回的候选经过去重与 Stage A，保留的旧候选分数不变
//   - 新旧候选按 (id, type) 去重后按分数稳定降序
//   - 没有任何新结果时不重排，只移除被替换的召回类型
//   - 写回使用 UpdateTTL；相同输入重复执行得到相同的集合
func (u *Updater) UpdateNonKeyword(ctx context.Context, id core.Identity, only ...core.RecallType) (int, error) {
	if id.UID == "" {
		return 0, nil
	}
	id = id.Canonical()
	log := logger(ctx, u.strategy.Name)

	set, err := u.LoadSet(ctx, id)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			log.Warn().Err(err).Str("uid", id.UID).Msg("read old recommendations failed")
		}
		set = &core.RecommendationSet{User: id.UID, UserType: core.UserUID}
	}

	rctx := core.NewRecommendContext(id, "", 0)
	var fresh []*core.Item
	for _, src := range u.updateSources(only) {
		got, err := src.Recall(ctx, rctx)
		if err != nil {
			return 0, fmt.Errorf("orchestrator: update %s: %w", src.Name(), err)
		}
		items := got.Flatten()
		if len(items) == 0 {
			log.Warn().Str("source", src.Name()).Str("uid", id.UID).Msg("update recalled nothing")
		}
		fresh = append(fresh, items...)
		set.Rec = withoutRecallType(set.Rec, src.RecallType())
	}

	n := len(fresh)
	if n > 0 {
		set.Rec = u.mergeFresh(ctx, id, set.Rec, fresh)
	}
	if err := u.deps.Cache.SetEX(ctx, u.strategy.NonKeywordKey(id), set, UpdateTTL); err != nil {
		return 0, fmt.Errorf("orchestrator: save %s: %w", id.UID, err)
	}
	log.Info().Str("uid", id.UID).Int("fresh", n).Int("total", len(set.Rec)).Msg("non keyword recommendations updated")
	return n, nil
}

// mergeFresh 对新候选去重并执行 Stage A，再与保留的旧候选合并、按分数排序。
func (u *Updater) mergeFresh(ctx context.Context, id core.Identity, kept, fresh []*core.Item) []*core.Item {
	var affinity map[core.RecallType]float64
	if u.deps.Affinity != nil {
		affinity = u.deps.Affinity.Predict(ctx, id)
	}
	fresh = rerank.MergeDuplicates(fresh, affinity)
	if u.deps.Resorter != nil {
		fresh = u.deps.Resorter.Resort(ctx, fresh, id)
	}
	merged := make([]*core.Item, 0, len(kept)+len(fresh))
	merged = append(merged, kept...)
	merged = append(merged, fresh...)
	merged = rerank.MergeDuplicates(merged, affinity)
	rerank.SortByScore(merged)
	return merged
}

// Resort 对用户已缓存的推荐集合重新执行 Stage A 并写回（UserTTL），集合不存在时什么都不做。
// 点击后调用，使刚写入的点击历史立即影响排序。
func (u *Updater) Resort(ctx context.Context, id core.Identity) error {
	if id.IsCold() {
		return nil
	}
	id = id.Canonical()
	set, err := u.LoadSet(ctx, id)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return nil
		}
		return fmt.Errorf("orchestrator: load %s: %w", id.UserID(), err)
	}
	if u.deps.Resorter != nil && len(set.Rec) > 0 {
		set.Rec = u.deps.Resorter.Resort(ctx, set.Rec, id)
	}
	if err := u.deps.Cache.SetEX(ctx, u.strategy.NonKeywordKey(id), set, u.strategy.userTTL()); err != nil {
		return fmt.Errorf("orchestrator: save %s: %w", id.UserID(), err)
	}
	return nil
}

func (u *Updater) updateSources(only []core.RecallType) []recall.Source {
	if len(only) == 0 {
		return u.strategy.UpdateSources
	}
	out := make([]recall.Source, 0, len(only))
	for _, src := range u.strategy.UpdateSources {
		for _, rt := range only {
			if src.RecallType() == rt {
				out = append(out, src)
				break
			}
		}
	}
	return out
}

func withoutRecallType(items []*core.Item, rt core.RecallType) []*core.Item {
	out := items[:0:0]
	for _, it := range items {
		if it.RecallType != rt {
			out = append(out, it)
		}
	}
	return out
}

// RefreshPayload 是 refresh_user 任务的负载。
type RefreshPayload struct {
	UID        string `json:"uid"`
	UD         string `json:"ud,omitempty"`
	Keyword    string `json:"keyword,omitempty"`
	AlgFlag    string `json:"alg_flag,omitempty"`
	FirstReach string `json:"first_reach,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// RefreshUser 是请求触发的后台刷新：有关键词时预加载关键词推荐（每个用户每个关键词一小时一次），
// 否则更新订阅类召回。返回新写入的候选数。
func (u *Updater) RefreshUser(ctx context.Context, id core.Identity, keyword string) (int, error) {
	if id.UID == "" {
		return 0, nil
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return u.UpdateNonKeyword(ctx, id, refreshRecallTypes...)
	}
	if u.strategy.Keyword == KeywordNewlyOnly {
		return 0, nil
	}

	key := u.strategy.KeywordUpdateKey(id, keyword)
	now := u.deps.now()
	if last, err := u.deps.Cache.GetString(ctx, key); err == nil {
		ts, _ := strconv.ParseFloat(last, 64)
		if float64(now.Unix())-ts < KeywordThrottle.Seconds() {
			logger(ctx, u.strategy.Name).Debug().Str("uid", id.UID).Str("keyword", keyword).Msg("keyword refreshed recently, skip")
			return 0, nil
		}
	}

	items, err := u.PreloadKeyword(ctx, keyword, id, defaultKeywordNum)
	if err != nil {
		return 0, err
	}
	if err := u.deps.Cache.SetString(ctx, key, strconv.FormatInt(now.Unix(), 10), KeywordThrottle); err != nil {
		return len(items), fmt.Errorf("orchestrator: save keyword throttle: %w", err)
	}
	return len(items), nil
}
