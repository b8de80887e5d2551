package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/orchestrator"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/metrics"
	"github.com/louhangyu/zhipu/store"
)

// lowRefreshCount 以下的刷新结果记录告警
const lowRefreshCount = 10

// PingbackPayload 是 pingback_show / pingback_click 任务的负载。
type PingbackPayload struct {
	UID     string        `json:"uid,omitempty"`
	UD      string        `json:"ud,omitempty"`
	ItemID  string        `json:"item"`
	Type    core.ItemType `json:"type,omitempty"`
	Keyword string        `json:"keyword,omitempty"`
}

// SubscribePayload 是 subscribe_changed 任务的负载。
type SubscribePayload struct {
	UID     string `json:"uid"`
	Keyword string `json:"keyword,omitempty"`
}

// Materializer 是任务使用的物化操作。
type Materializer interface {
	PreloadItems(ctx context.Context, refs []core.ItemKey, useCache bool) error
	IncreaseViews(ctx context.Context, pubID string) (int, error)
}

// KeywordOmitter 在用户看过关键词的新论文后删除订阅统计。
type KeywordOmitter interface {
	Omit(ctx context.Context, uid, keyword string) error
}

// TopTrainer 刷新运营置顶。
type TopTrainer interface {
	Train(ctx context.Context) ([]core.EditorPick, error)
}

// HandlerFunc 处理一个任务负载。
type HandlerFunc func(ctx context.Context, payload []byte) error

// Handlers 是全部后台任务的处理逻辑。
//
// 约定：
//   - 请求触发的刷新、订阅变更、点击重排都使用默认策略
//   - 负载无法解析的任务直接确认，不重试
type Handlers struct {
	registry *orchestrator.Registry
	deps     *orchestrator.Deps
	items    Materializer
	omitter  KeywordOmitter
	top      TopTrainer
	handlers map[string]HandlerFunc
}

// NewHandlers 创建任务处理，items / omitter / top 为 nil 时对应任务什么都不做。
func NewHandlers(registry *orchestrator.Registry, deps *orchestrator.Deps, items Materializer, omitter KeywordOmitter, top TopTrainer) *Handlers {
	h := &Handlers{registry: registry, deps: deps, items: items, omitter: omitter, top: top}
	h.handlers = map[string]HandlerFunc{
		core.JobRefreshUser:       h.refreshUser,
		core.JobPreloadLostItems:  h.preloadLost,
		core.JobPreloadCandidates: h.preloadCandidates,
		core.JobMakeTop:           h.makeTop,
		core.JobSubscribeChanged:  h.subscribeChanged,
		core.JobPingbackShow:      h.pingbackShow,
		core.JobPingbackClick:     h.pingbackClick,
	}
	return h
}

// Names 返回全部任务名。
func (h *Handlers) Names() []string {
	return []string{
		core.JobRefreshUser,
		core.JobPreloadLostItems,
		core.JobPreloadCandidates,
		core.JobMakeTop,
		core.JobSubscribeChanged,
		core.JobPingbackShow,
		core.JobPingbackClick,
	}
}

// Handle 执行一个任务。
func (h *Handlers) Handle(ctx context.Context, job core.Job) error {
	fn, ok := h.handlers[job.Name]
	if !ok {
		return core.NewDomainError(core.ModuleJobs, core.ErrorCodeNotSupported, "jobs: unknown job "+job.Name)
	}
	start := time.Now()
	err := fn(ctx, job.Payload)
	metrics.RecordJob(job.Name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("jobs: %s: %w", job.Name, err)
	}
	return nil
}

func (h *Handlers) updater() *orchestrator.Updater {
	return orchestrator.NewUpdater(h.registry.Get(""), h.deps)
}

func (h *Handlers) log(ctx context.Context, job string) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("component", "jobs").Str("job", job).Logger()
	return &l
}

// decode 解析负载，失败时记录日志并返回 false。
func (h *Handlers) decode(ctx context.Context, job string, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		h.log(ctx, job).Warn().Err(err).Int("bytes", len(payload)).Msg("drop job with bad payload")
		return false
	}
	return true
}

func (h *Handlers) refreshUser(ctx context.Context, payload []byte) error {
	var p orchestrator.RefreshPayload
	if !h.decode(ctx, core.JobRefreshUser, payload, &p) || p.UID == "" {
		return nil
	}
	n, err := h.updater().RefreshUser(ctx, core.Identity{UID: p.UID, UD: p.UD}, p.Keyword)
	if err != nil {
		return err
	}
	if n > 0 && n < lowRefreshCount {
		h.log(ctx, core.JobRefreshUser).Warn().Str("uid", p.UID).Str("keyword", p.Keyword).Int("count", n).Msg("few recommendations after refresh")
	}
	return nil
}

func (h *Handlers) preloadLost(ctx context.Context, payload []byte) error {
	var p aggregate.LostItemsPayload
	if h.items == nil || !h.decode(ctx, core.JobPreloadLostItems, payload, &p) || len(p.Items) == 0 {
		return nil
	}
	return h.items.PreloadItems(ctx, p.Items, true)
}

func (h *Handlers) preloadCandidates(ctx context.Context, payload []byte) error {
	var p orchestrator.PreloadPayload
	if h.items == nil || !h.decode(ctx, core.JobPreloadCandidates, payload, &p) || len(p.Items) == 0 {
		return nil
	}
	return h.items.PreloadItems(ctx, p.Items, p.UseCache)
}

func (h *Handlers) makeTop(ctx context.Context, _ []byte) error {
	if h.top == nil {
		return nil
	}
	_, err := h.top.Train(ctx)
	return err
}

func (h *Handlers) subscribeChanged(ctx context.Context, payload []byte) error {
	var p SubscribePayload
	if !h.decode(ctx, core.JobSubscribeChanged, payload, &p) || p.UID == "" {
		return nil
	}
	_, err := h.updater().UpdateNonKeyword(ctx, core.Identity{UID: p.UID}, core.RecallSubscribe)
	return err
}

// pingbackShow 记录曝光；带关键词的登录用户同时删除该关键词的订阅统计。
func (h *Handlers) pingbackShow(ctx context.Context, payload []byte) error {
	var p PingbackPayload
	if !h.decode(ctx, core.JobPingbackShow, payload, &p) {
		return nil
	}
	id := core.Identity{UID: p.UID, UD: p.UD}
	if id.IsCold() || p.ItemID == "" {
		h.log(ctx, core.JobPingbackShow).Warn().Str("item", p.ItemID).Msg("pingback without user or item")
		return nil
	}
	if err := h.record(ctx, store.ShowHistoryKey(id), p.ItemID); err != nil {
		return err
	}
	if p.UID != "" && p.Keyword != "" && h.omitter != nil {
		if err := h.omitter.Omit(ctx, p.UID, p.Keyword); err != nil {
			h.log(ctx, core.JobPingbackShow).Warn().Err(err).Str("uid", p.UID).Msg("omit subscribe stat failed")
		}
	}
	return nil
}

// pingbackClick 记录点击、增加论文浏览量，并重排用户的推荐集合。
func (h *Handlers) pingbackClick(ctx context.Context, payload []byte) error {
	var p PingbackPayload
	if !h.decode(ctx, core.JobPingbackClick, payload, &p) {
		return nil
	}
	id := core.Identity{UID: p.UID, UD: p.UD}
	if id.IsCold() {
		h.log(ctx, core.JobPingbackClick).Warn().Str("item", p.ItemID).Msg("pingback without user")
		return nil
	}
	if p.ItemID != "" {
		if err := h.record(ctx, store.ClickHistoryKey(id), p.ItemID); err != nil {
			return err
		}
		if h.items != nil && (p.Type == "" || p.Type == core.ItemPub) {
			if _, err := h.items.IncreaseViews(ctx, p.ItemID); err != nil {
				h.log(ctx, core.JobPingbackClick).Warn().Err(err).Str("item", p.ItemID).Msg("increase views failed")
			}
		}
	}
	return h.updater().Resort(ctx, id)
}

// record 把物品计入历史有序集合，并只保留次数最多的 HistoryLimit 个。
func (h *Handlers) record(ctx context.Context, key, item string) error {
	kv := h.deps.Cache.KV()
	if kv == nil || key == "" {
		return nil
	}
	if _, err := kv.ZIncrBy(ctx, key, 1, item); err != nil {
		return fmt.Errorf("record %s: %w", key, err)
	}
	if err := kv.ZRemRangeByRank(ctx, key, 0, -int64(store.HistoryLimit)-1); err != nil {
		return fmt.Errorf("trim %s: %w", key, err)
	}
	return nil
}
