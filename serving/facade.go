// Package serving 是推荐请求的下发入口：按 alg_flag 选择策略，读取缓存中的推荐集合，
// 经过下发链路后补全展示字段。
package serving

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/filter"
	"github.com/louhangyu/zhipu/orchestrator"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/rerank"
)

// 下发参数
const (
	DefaultNum      = 6
	candidateFactor = 20
)

// 请求参数 key
const (
	ParamFirstReach = "first_reach"
	ParamUserAgent  = "user_agent"
)

// Request 是一次推荐请求。
type Request struct {
	UID        string            `json:"uid" validate:"max=64"`
	UD         string            `json:"ud" validate:"max=128"`
	Keywords   []string          `json:"keywords" validate:"max=20,dive,max=256"`
	Num        int               `json:"num" validate:"gte=0,lte=500"`
	ExcludeIDs []string          `json:"exclude_ids" validate:"max=2000"`
	ABFlag     string            `json:"ab_flag,omitempty"`
	AlgFlag    string            `json:"alg_flag" validate:"max=32"`
	FirstReach string            `json:"first_reach"`
	Recalls    []core.RecallType `json:"recalls"`
	UserAgent  string            `json:"-"`
}

// Keyword 把非空关键词以空格拼接。
func (r *Request) Keyword() string {
	words := make([]string, 0, len(r.Keywords))
	for _, w := range r.Keywords {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// Response 是推荐结果。
type Response struct {
	Data []*core.Item `json:"data"`
	Meta Meta         `json:"meta"`
}

// Meta 是结果附带的信息。
type Meta struct {
	UID            string                       `json:"uid,omitempty"`
	UD             string                       `json:"ud,omitempty"`
	SubscribeNewly map[string]core.KeywordNewly `json:"subscribe_newly"`
	ABFlag         string                       `json:"ab_flag"`
}

// Enricher 为候选补全展示字段。
type Enricher interface {
	CachedItems(ctx context.Context, items []*core.Item) []*core.Item
}

// Facade 处理推荐请求。
//
// 流程：
//  1. 按 AlgFlag 选择策略，未知时使用默认策略
//  2. 有 uid 时投递 refresh_user 任务，不等待结果
//  3. 有关键词时走关键词推荐，否则读取用户 / 冷启动集合并执行下发链路
//  4. 过滤 exclude_ids 与 recalls，补全展示字段
//  5. 执行策略的 ServeRule，命中的候选被丢弃
//  6. 取 num 个，运营置顶不计数
//
// 任何内部错误都只返回空结果。
type Facade struct {
	registry *orchestrator.Registry
	deps     *orchestrator.Deps
	serve    *pipeline.Pipeline
	exclude  *pipeline.Pipeline
	queue    core.JobQueue
	newly    core.NewlyStats
	enricher Enricher
	timeout  time.Duration
	rules    map[string]*pipeline.Pipeline
}

// Option 是 Facade 的配置选项。
type Option func(*Facade)

// WithJobQueue 设置刷新任务队列
func WithJobQueue(q core.JobQueue) Option {
	return func(f *Facade) { f.queue = q }
}

// WithNewlyStats 设置订阅统计，结果的 meta 中返回
func WithNewlyStats(n core.NewlyStats) Option {
	return func(f *Facade) { f.newly = n }
}

// WithEnricher 设置展示字段补全
func WithEnricher(e Enricher) Option {
	return func(f *Facade) { f.enricher = e }
}

// WithTimeout 设置单个请求的处理上限
func WithTimeout(d time.Duration) Option {
	return func(f *Facade) { f.timeout = d }
}

// NewFacade 创建下发入口，serve 是非关键词路径的下发链路。
func NewFacade(registry *orchestrator.Registry, deps *orchestrator.Deps, serve *pipeline.Pipeline, opts ...Option) *Facade {
	f := &Facade{
		registry: registry,
		deps:     deps,
		serve:    serve,
		exclude: &pipeline.Pipeline{Nodes: []pipeline.Node{
			&filter.FilterNode{Filters: []filter.Filter{filter.NewExcludeFilter()}},
		}},
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.rules = serveRules(registry)
	return f
}

// serveRules 为每个策略编译 ServeRule，表达式非法的策略不过滤并记录错误。
func serveRules(registry *orchestrator.Registry) map[string]*pipeline.Pipeline {
	rules := make(map[string]*pipeline.Pipeline)
	if registry == nil {
		return rules
	}
	for _, s := range registry.All() {
		if s.ServeRule == "" {
			continue
		}
		rule, err := filter.NewExprFilter(s.ServeRule, false)
		if err != nil {
			logging.Ctx(context.Background()).Error().Err(err).Str("component", "serving").
				Str("strategy", s.Name).Str("rule", s.ServeRule).Msg("invalid serve rule, ignored")
			continue
		}
		rules[s.Flag] = &pipeline.Pipeline{Nodes: []pipeline.Node{
			&filter.FilterNode{Filters: []filter.Filter{rule}},
		}}
	}
	return rules
}

// Recommend 返回推荐结果，失败时 Data 为空。
func (f *Facade) Recommend(ctx context.Context, req Request) Response {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	num := req.Num
	if num <= 0 {
		num = DefaultNum
	}
	id := core.Identity{UID: req.UID, UD: req.UD}
	keyword := req.Keyword()
	abFlag := req.ABFlag
	if abFlag == "" {
		abFlag = orchestrator.ABFlag(req.UD)
	}
	strategy := f.registry.Get(req.AlgFlag)
	ctx = logging.ContextWithUser(ctx, string(id.Type())+":"+id.UserID())
	log := logging.Ctx(ctx).With().Str("component", "serving").Str("strategy", strategy.Name).Logger()

	resp := Response{
		Data: []*core.Item{},
		Meta: Meta{UID: req.UID, UD: req.UD, ABFlag: abFlag, SubscribeNewly: map[string]core.KeywordNewly{}},
	}

	if req.UID != "" {
		f.enqueueRefresh(ctx, &log, req, keyword)
	}

	rctx := core.NewRecommendContext(id, keyword, num*candidateFactor)
	rctx.ABFlag = abFlag
	rctx.Params[filter.ParamExcludeIDs] = req.ExcludeIDs
	rctx.Params[rerank.ParamPrependTop] = strategy.PrependTop
	rctx.Params[ParamFirstReach] = req.FirstReach
	rctx.Params[ParamUserAgent] = req.UserAgent

	items, err := f.candidates(ctx, strategy, rctx)
	if err != nil {
		log.Warn().Err(err).Str("keyword", keyword).Int("num", num).Msg("fetch recommendations failed")
		return resp
	}
	items = keepRecalls(items, req.Recalls)
	if f.enricher != nil && len(items) > 0 {
		items = f.enricher.CachedItems(ctx, items)
	}
	if rule, ok := f.rules[strategy.Flag]; ok && len(items) > 0 {
		if kept, err := rule.Run(ctx, rctx, items); err != nil {
			log.Warn().Err(err).Msg("serve rule failed, keep items")
		} else {
			items = kept
		}
	}
	resp.Data = take(items, num)

	if req.UID != "" && f.newly != nil {
		newly, err := f.newly.Newly(ctx, req.UID)
		if err != nil {
			log.Warn().Err(err).Msg("read subscribe stat failed")
		} else if newly != nil {
			resp.Meta.SubscribeNewly = newly
		}
	}
	return resp
}

func (f *Facade) candidates(ctx context.Context, s *orchestrator.Strategy, rctx *core.RecommendContext) ([]*core.Item, error) {
	u := orchestrator.NewUpdater(s, f.deps)
	if rctx.Keyword != "" {
		items, err := u.FetchKeyword(ctx, rctx.Identity, rctx.Keyword, rctx.Count)
		if err != nil {
			return nil, err
		}
		return f.exclude.Run(ctx, rctx, items)
	}
	items := u.FetchNonKeyword(ctx, rctx.Identity)
	if f.serve == nil {
		return f.exclude.Run(ctx, rctx, items)
	}
	return f.serve.Run(ctx, rctx, items)
}

func (f *Facade) enqueueRefresh(ctx context.Context, log *zerolog.Logger, req Request, keyword string) {
	if f.queue == nil {
		return
	}
	payload, err := json.Marshal(orchestrator.RefreshPayload{
		UID:        req.UID,
		UD:         req.UD,
		Keyword:    keyword,
		AlgFlag:    req.AlgFlag,
		FirstReach: req.FirstReach,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		log.Warn().Err(err).Msg("encode refresh payload failed")
		return
	}
	job := core.Job{ID: uuid.NewString(), Name: core.JobRefreshUser, Payload: payload}
	if err := f.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
		log.Warn().Err(err).Msg("enqueue refresh failed")
	}
}

// keepRecalls 只保留指定召回类型的候选，未指定时全部保留。
func keepRecalls(items []*core.Item, recalls []core.RecallType) []*core.Item {
	if len(recalls) == 0 {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		for _, rt := range recalls {
			if it.RecallType == rt {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// take 取前 num 个候选，运营置顶不计入 num。
func take(items []*core.Item, num int) []*core.Item {
	out := make([]*core.Item, 0, min(len(items), num))
	n := 0
	for _, it := range items {
		if n >= num {
			break
		}
		out = append(out, it)
		if it.RecallType != core.RecallTop {
			n++
		}
	}
	return out
}
