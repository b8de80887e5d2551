package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/metrics"
	"github.com/louhangyu/zhipu/pkg/textutil"
	"github.com/louhangyu/zhipu/recall"
)

// preloadBatch 是一个 preload_candidates 任务携带的候选数
const preloadBatch = 500

// TrainOptions 是离线训练的参数。
type TrainOptions struct {
	Workers       int           // 用户级并发数
	JobTimeout    time.Duration // 整个训练的软上限，超时后未完成的用户被丢弃
	RecallTimeout time.Duration // 单个召回源的超时
	ActiveDays    int           // uid：最近 N 天有行为
	UDActiveDays  int           // ud：最近 N 天内
	UDMinDays     int           // ud：活跃天数大于 N
	UseItemCache  bool          // 物化时是否使用已有缓存
}

// DefaultTrainOptions 返回默认训练参数。
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Workers:       8,
		JobTimeout:    8 * time.Hour,
		RecallTimeout: 30 * time.Second,
		ActiveDays:    10,
		UDActiveDays:  7,
		UDMinDays:     3,
		UseItemCache:  true,
	}
}

// TrainStats 是一次训练的汇总。
type TrainStats struct {
	Users      int
	Written    int
	Failed     int
	Candidates int
}

// PreloadPayload 是 preload_candidates 任务的负载。
type PreloadPayload struct {
	Items    []core.ItemKey `json:"items"`
	UseCache bool           `json:"use_cache"`
}

// Trainer 为一个策略离线生成全部活跃用户的推荐集合。
type Trainer struct {
	strategy *Strategy
	deps     *Deps
	opts     TrainOptions
	updater  *Updater
}

func NewTrainer(s *Strategy, deps *Deps, opts TrainOptions) *Trainer {
	def := DefaultTrainOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = def.JobTimeout
	}
	if opts.ActiveDays <= 0 {
		opts.ActiveDays = def.ActiveDays
	}
	if opts.UDActiveDays <= 0 {
		opts.UDActiveDays = def.UDActiveDays
	}
	return &Trainer{strategy: s, deps: deps, opts: opts, updater: NewUpdater(s, deps)}
}

// errNoCandidates 表示召回或 Refine 之后没有任何候选，此时不覆盖旧缓存。
var errNoCandidates = errors.New("orchestrator: no candidates")

// Train 生成并写入推荐集合。
//
// 流程：
//  1. 冷启动用户：ColdSources 的输出，写入冷启动 key（ColdTTL）
//  2. 用户集合 = 活跃 uid ∪ 活跃 ud ∪ 批量召回源中出现的用户
//  3. 每个用户并发执行 Sources，按召回源顺序、每个源内按 ValidItemTypes 拼接
//  4. 执行 Refine 节点链后写入（UserTTL）
//  5. 布隆过滤去重后投递全部候选的物化任务
//
// 规则：
//   - 召回出错、ctx 超时或没有候选的用户不写入，保留旧缓存，计入 Failed
//   - 冷启动集合同样不会被空列表覆盖
//   - ctx 超时后剩余用户被跳过，已写入的保留
func (t *Trainer) Train(ctx context.Context) (TrainStats, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, t.opts.JobTimeout)
	defer cancel()
	log := logger(ctx, t.strategy.Name)

	var (
		stats TrainStats
		mu    sync.Mutex
	)
	seen := newCandidateSet()

	cold, err := t.recallUser(ctx, t.strategy.ColdSources, core.ColdIdentity())
	if err == nil {
		seen.add(cold)
		err = t.write(ctx, core.ColdIdentity(), cold, t.strategy.coldTTL())
	}
	if err != nil && len(t.strategy.ColdSources) > 0 {
		log.Error().Err(err).Msg("cold recommendations not written, keep previous")
	}

	users, err := t.users(ctx)
	if err != nil {
		return stats, err
	}
	stats.Users = len(users)
	log.Info().Int("users", len(users)).Int("cold", len(cold)).Msg("train started")

	g := new(errgroup.Group)
	g.SetLimit(t.opts.Workers)
	for _, id := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			items, err := t.recallUser(ctx, t.strategy.Sources, id)
			if err == nil {
				seen.add(items)
				err = t.write(ctx, id, items, t.strategy.userTTL())
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("user", id.UserID()).Msg("user recommendations not written, keep previous")
				return nil
			}
			stats.Written++
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		log.Warn().Err(ctx.Err()).Int("written", stats.Written).Msg("train reached job timeout")
	}

	stats.Candidates = seen.len()
	t.preload(context.WithoutCancel(ctx), seen.keys())
	metrics.RecordTrain(t.strategy.Name, stats.Written, time.Since(start))
	log.Info().Int("written", stats.Written).Int("failed", stats.Failed).
		Int("candidates", stats.Candidates).Dur("took", time.Since(start)).Msg("train done")
	return stats, nil
}

// recallUser 为一个用户执行召回源并拼接：召回源顺序在外，物品类型顺序在内。
// ctx 结束时返回 ctx 的错误，没有任何候选时返回 errNoCandidates。
func (t *Trainer) recallUser(ctx context.Context, sources []recall.Source, id core.Identity) ([]*core.Item, error) {
	if len(sources) == 0 {
		return nil, errNoCandidates
	}
	fan := &recall.Fanout{Sources: sources, Timeout: t.opts.RecallTimeout}
	results, err := fan.RecallEach(ctx, core.NewRecommendContext(id, "", 0))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: recall %s: %w", id.UserID(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("orchestrator: recall %s: %w", id.UserID(), err)
	}
	var out []*core.Item
	for _, r := range results {
		out = append(out, r.Flatten()...)
	}
	if len(out) == 0 {
		return nil, errNoCandidates
	}
	return out, nil
}

// write 执行 Refine 后写入；结果为空或 ctx 已结束时不写。
func (t *Trainer) write(ctx context.Context, id core.Identity, items []*core.Item, ttl time.Duration) error {
	rec, err := t.deps.refine(ctx, id, items)
	if err != nil {
		return err
	}
	if len(rec) == 0 {
		return errNoCandidates
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	set := core.RecommendationSet{User: id.UserID(), UserType: id.Type(), Rec: rec}
	return t.deps.Cache.SetEX(ctx, t.strategy.NonKeywordKey(id), set, ttl)
}

// users 返回训练的用户集合，按 (类型, id) 排序。
func (t *Trainer) users(ctx context.Context) ([]core.Identity, error) {
	set := make(map[core.Identity]struct{})
	now := t.deps.now()
	if t.deps.Users != nil {
		uids, err := t.deps.Users.ActiveUIDs(ctx, now.AddDate(0, 0, -t.opts.ActiveDays))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: active uids: %w", err)
		}
		for _, uid := range uids {
			if textutil.IsObjectID(uid) {
				set[core.Identity{UID: uid}] = struct{}{}
			}
		}
		uds, err := t.deps.Users.ActiveUDs(ctx, now.AddDate(0, 0, -t.opts.UDActiveDays), t.opts.UDMinDays)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: active uds: %w", err)
		}
		for _, ud := range uds {
			if ud != "" {
				set[core.Identity{UD: ud}] = struct{}{}
			}
		}
	}
	for _, src := range t.strategy.Sources {
		batch, ok := src.(recall.BatchSource)
		if !ok {
			continue
		}
		all, err := batch.RecallAll(ctx)
		if err != nil {
			logger(ctx, t.strategy.Name).Warn().Err(err).Str("source", src.Name()).Msg("batch recall failed")
			continue
		}
		for id := range all {
			if !id.IsCold() {
				set[id.Canonical()] = struct{}{}
			}
		}
	}

	out := make([]core.Identity, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type() != out[j].Type() {
			return out[i].Type() < out[j].Type()
		}
		return out[i].UserID() < out[j].UserID()
	})
	return out, nil
}

// TrainKeyword 为活跃 uid 的每个订阅关键词预加载关键词推荐。
func (t *Trainer) TrainKeyword(ctx context.Context) (TrainStats, error) {
	var stats TrainStats
	if t.strategy.Keyword == KeywordNewlyOnly || t.deps.Users == nil || t.deps.Profiles == nil {
		return stats, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.opts.JobTimeout)
	defer cancel()
	log := logger(ctx, t.strategy.Name)

	uids, err := t.deps.Users.ActiveUIDs(ctx, t.deps.now().AddDate(0, 0, -t.opts.ActiveDays))
	if err != nil {
		return stats, fmt.Errorf("orchestrator: active uids: %w", err)
	}

	type task struct {
		id      core.Identity
		keyword string
	}
	var tasks []task
	for _, uid := range uids {
		if !textutil.IsObjectID(uid) {
			continue
		}
		p, err := t.deps.Profiles.Profile(ctx, uid)
		if err != nil {
			log.Warn().Err(err).Str("uid", uid).Msg("load profile failed")
			continue
		}
		stats.Users++
		for _, kw := range textutil.Dedup(p.Keywords) {
			tasks = append(tasks, task{id: core.Identity{UID: uid}, keyword: kw})
		}
	}

	var mu sync.Mutex
	seen := newCandidateSet()
	g := new(errgroup.Group)
	g.SetLimit(t.opts.Workers)
	for _, tk := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			items, err := t.updater.PreloadKeyword(ctx, tk.keyword, tk.id, defaultKeywordNum)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				log.Warn().Err(err).Str("uid", tk.id.UID).Str("keyword", tk.keyword).Msg("preload keyword failed")
				return nil
			}
			stats.Written++
			seen.add(items)
			return nil
		})
	}
	_ = g.Wait()

	stats.Candidates = seen.len()
	t.preload(context.WithoutCancel(ctx), seen.keys())
	log.Info().Int("keywords", len(tasks)).Int("written", stats.Written).Int("failed", stats.Failed).Msg("keyword train done")
	return stats, nil
}

// preload 按批投递物化任务；没有队列时直接物化。
func (t *Trainer) preload(ctx context.Context, keys []core.ItemKey) {
	if len(keys) == 0 {
		return
	}
	log := logger(ctx, t.strategy.Name)
	if t.deps.Queue == nil {
		if t.deps.Preloader == nil {
			return
		}
		if err := t.deps.Preloader.PreloadItems(ctx, keys, t.opts.UseItemCache); err != nil {
			log.Warn().Err(err).Int("items", len(keys)).Msg("preload candidates failed")
		}
		return
	}
	for start := 0; start < len(keys); start += preloadBatch {
		batch := keys[start:min(start+preloadBatch, len(keys))]
		payload, err := json.Marshal(PreloadPayload{Items: batch, UseCache: t.opts.UseItemCache})
		if err != nil {
			log.Warn().Err(err).Msg("encode preload payload failed")
			continue
		}
		job := core.Job{ID: uuid.NewString(), Name: core.JobPreloadCandidates, Payload: payload}
		if err := t.deps.Queue.Enqueue(ctx, job); err != nil {
			log.Warn().Err(err).Int("items", len(batch)).Msg("enqueue preload candidates failed")
		}
	}
}

// candidateSet 用布隆过滤器对候选去重，保留首次出现顺序。
type candidateSet struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	items  []core.ItemKey
}

func newCandidateSet() *candidateSet {
	return &candidateSet{filter: bloom.NewWithEstimates(1_000_000, 0.001)}
}

func (s *candidateSet) add(items []*core.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if s.filter.TestOrAddString(string(it.Type) + ":" + it.ID) {
			continue
		}
		s.items = append(s.items, it.Key())
	}
}

func (s *candidateSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *candidateSet) keys() []core.ItemKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ItemKey(nil), s.items...)
}
