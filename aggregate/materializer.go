package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/metrics"
	"github.com/louhangyu/zhipu/pkg/textutil"
	"github.com/louhangyu/zhipu/store"
)

// 物化缓存 key 前缀
const (
	pubKeyPrefix      = "agg_pub_"
	pubTopicKeyPrefix = "agg_pub_topic_"
	personKeyPrefix   = "person_"
	ai2kKeyPrefix     = "agg_ai2k_"
	reportKeyPrefix   = "agg_report_"
)

const defaultPreloadConcurrency = 8

// CacheKey 返回物品物化记录的缓存 key，未知类型返回空字符串。
func CacheKey(typ core.ItemType, id string) string {
	switch typ {
	case core.ItemPub:
		return pubKeyPrefix + id
	case core.ItemPubTopic:
		return pubTopicKeyPrefix + id
	case core.ItemPerson:
		return personKeyPrefix + id
	case core.ItemAI2K:
		return ai2kKeyPrefix + id
	case core.ItemReport:
		return reportKeyPrefix + id
	default:
		return ""
	}
}

// CacheTTL 返回物品物化记录的缓存时长。
func CacheTTL(typ core.ItemType) time.Duration {
	switch typ {
	case core.ItemPubTopic, core.ItemReport:
		return core.TopicCacheTTL
	case core.ItemPerson:
		return core.PersonCacheTTL
	default:
		return core.PubCacheTTL
	}
}

// Materializer 把 (id, type) 解析为物化记录并写入缓存。
//
// 设计原则：
//   - 缓存命中原样返回，未命中从记录库计算
//   - 物品不存在或 id 非法时返回空记录，不返回错误
//   - 期刊简称、分区、浏览量等外部查询各自失败，失败取空值
//   - 写缓存总是覆盖，后写为准
type Materializer struct {
	records core.RecordStore
	cache   *store.Cache
	venue   core.VenueService
	actions core.ActionLog
	views   ViewCounter
	queue   core.JobQueue
	now     func() time.Time
	limit   int
}

// Option 是 Materializer 的配置选项。
type Option func(*Materializer)

// WithVenueService 设置期刊简称 / 分区查询
func WithVenueService(v core.VenueService) Option {
	return func(m *Materializer) { m.venue = v }
}

// WithActionLog 设置学者动态来源（榜单物化使用）
func WithActionLog(a core.ActionLog) Option {
	return func(m *Materializer) { m.actions = a }
}

// WithViewCounter 设置浏览量计数器
func WithViewCounter(v ViewCounter) Option {
	return func(m *Materializer) { m.views = v }
}

// WithJobQueue 设置缓存缺失时的补偿队列
func WithJobQueue(q core.JobQueue) Option {
	return func(m *Materializer) { m.queue = q }
}

// WithClock 替换当前时间（测试使用）
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithPreloadConcurrency 设置批量预加载的并发数
func WithPreloadConcurrency(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.limit = n
		}
	}
}

// NewMaterializer 创建物化器
func NewMaterializer(records core.RecordStore, cache *store.Cache, opts ...Option) *Materializer {
	m := &Materializer{
		records: records,
		cache:   cache,
		now:     time.Now,
		limit:   defaultPreloadConcurrency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize 返回物品的物化记录。
// useCache 为 false 时忽略缓存重新计算；损坏的缓存按未命中处理。
func (m *Materializer) Materialize(ctx context.Context, id string, typ core.ItemType, useCache bool) (Record, error) {
	key := CacheKey(typ, id)
	if key == "" {
		return nil, core.NewDomainError(core.ModuleAggregate, core.ErrorCodeInvalidInput,
			fmt.Sprintf("aggregate: unknown item type %q", typ))
	}
	if !textutil.IsObjectID(id) {
		m.log(ctx).Warn().Str("id", id).Str("type", string(typ)).Msg("invalid item id")
		metrics.RecordMaterialize(string(typ), "empty")
		return Record{}, nil
	}

	if useCache {
		var cached Record
		err := m.cache.Get(ctx, key, &cached)
		switch {
		case err == nil && !cached.IsEmpty():
			metrics.RecordMaterialize(string(typ), "hit")
			return cached, nil
		case err != nil && !core.IsStoreNotFound(err):
			m.log(ctx).Warn().Err(err).Str("key", key).Msg("read cached record failed")
		}
	}

	rec, err := m.build(ctx, id, typ, useCache)
	if err != nil {
		metrics.RecordMaterialize(string(typ), "error")
		return nil, err
	}
	if rec.IsEmpty() {
		m.log(ctx).Warn().Str("id", id).Str("type", string(typ)).Msg("item not found")
		metrics.RecordMaterialize(string(typ), "empty")
		return Record{}, nil
	}
	if err := m.cache.SetEX(ctx, key, rec, CacheTTL(typ)); err != nil {
		m.log(ctx).Warn().Err(err).Str("key", key).Msg("write record cache failed")
	}
	metrics.RecordMaterialize(string(typ), "miss")
	return rec, nil
}

func (m *Materializer) build(ctx context.Context, id string, typ core.ItemType, useCache bool) (Record, error) {
	switch typ {
	case core.ItemPub:
		return m.buildPub(ctx, id, useCache)
	case core.ItemPubTopic:
		return m.buildPubTopic(ctx, id)
	case core.ItemPerson:
		return m.buildPerson(ctx, id, useCache)
	case core.ItemAI2K:
		return m.buildAI2K(ctx, id)
	case core.ItemReport:
		return m.buildReport(ctx, id)
	default:
		return nil, core.NewDomainError(core.ModuleAggregate, core.ErrorCodeInvalidInput,
			fmt.Sprintf("aggregate: unknown item type %q", typ))
	}
}

// findDocument 读取一条文档，不存在时返回 nil 文档和 nil 错误。
func (m *Materializer) findDocument(ctx context.Context, collection, id string) (core.Document, error) {
	doc, err := m.records.FindByID(ctx, collection, id)
	if core.IsStoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate: find %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// PreloadItems 批量物化并写缓存，非法 id 与未知类型跳过，单个物品失败只记录日志。
func (m *Materializer) PreloadItems(ctx context.Context, refs []core.ItemKey, useCache bool) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for _, ref := range refs {
		if !textutil.IsObjectID(ref.ID) || CacheKey(ref.Type, ref.ID) == "" {
			continue
		}
		g.Go(func() error {
			if _, err := m.Materialize(gctx, ref.ID, ref.Type, useCache); err != nil {
				m.log(gctx).Warn().Err(err).Str("id", ref.ID).Str("type", string(ref.Type)).Msg("preload item failed")
			}
			return gctx.Err()
		})
	}
	return g.Wait()
}

// CachedItems 一次批量读取候选的物化记录并合并到 Extra。
//
// 规则：
//   - 命中的记录 id 与 type 必须与候选一致
//   - 命中的论文总是带 extra.title（可能为空串），是否丢弃由下发规则决定
//   - 未命中的候选以 0 分返回，并投递 preload_lost_items 任务
//   - 未知类型的候选被丢弃
func (m *Materializer) CachedItems(ctx context.Context, items []*core.Item) []*core.Item {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		if key := CacheKey(it.Type, it.ID); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	found, err := m.cache.MultiGet(ctx, keys)
	if err != nil {
		m.log(ctx).Warn().Err(err).Int("keys", len(keys)).Msg("multi get records failed")
		found = nil
	}

	out := make([]*core.Item, 0, len(items))
	var lost []core.ItemKey
	for _, it := range items {
		key := CacheKey(it.Type, it.ID)
		if key == "" {
			m.log(ctx).Warn().Str("id", it.ID).Str("type", string(it.Type)).Msg("unknown item type")
			continue
		}
		raw, ok := found[key]
		if !ok {
			metrics.RecordCache("record", false)
			lost = append(lost, it.Key())
			miss := it.Clone()
			miss.Score = 0
			out = append(out, miss)
			continue
		}
		metrics.RecordCache("record", true)

		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			metrics.CacheCorrupt.Inc()
			lost = append(lost, it.Key())
			continue
		}
		if rec.ID() != it.ID || rec.Type() != it.Type {
			continue
		}
		hit := it.Clone()
		for k, v := range rec {
			if k == "id" || k == "type" {
				continue
			}
			hit.PutExtra(k, v)
		}
		if it.Type == core.ItemPub {
			hit.PutExtra("title", rec.Title())
		}
		out = append(out, hit)
	}

	if len(lost) > 0 {
		m.log(ctx).Warn().Int("lost", len(lost)).Msg("records missing from cache")
		m.enqueueLost(ctx, lost)
	}
	return out
}

// LostItemsPayload 是 preload_lost_items 任务的负载。
type LostItemsPayload struct {
	Items []core.ItemKey `json:"items"`
}

func (m *Materializer) enqueueLost(ctx context.Context, lost []core.ItemKey) {
	if m.queue == nil {
		return
	}
	payload, err := json.Marshal(LostItemsPayload{Items: lost})
	if err != nil {
		m.log(ctx).Warn().Err(err).Msg("marshal lost items failed")
		return
	}
	job := core.Job{ID: uuid.NewString(), Name: core.JobPreloadLostItems, Payload: payload}
	if err := m.queue.Enqueue(ctx, job); err != nil {
		m.log(ctx).Warn().Err(err).Msg("enqueue lost items failed")
	}
}

// IncreaseViews 把缓存中论文的浏览量加一；计数器更大时以计数器为准。
// 论文未缓存时返回 0。
func (m *Materializer) IncreaseViews(ctx context.Context, pubID string) (int, error) {
	key := CacheKey(core.ItemPub, pubID)
	var rec Record
	if err := m.cache.Get(ctx, key, &rec); err != nil {
		if core.IsStoreNotFound(err) || core.IsDataIntegrity(err) {
			return 0, nil
		}
		return 0, err
	}
	if rec.IsEmpty() {
		return 0, nil
	}

	current := int(rec.NumViewed())
	if fresh := m.fetchViews(ctx, core.ItemPub, pubID, false); fresh > current {
		current = fresh
	} else {
		current++
	}
	rec["num_viewed"] = current
	if err := m.cache.SetEX(ctx, key, rec, core.PubCacheTTL); err != nil {
		return 0, err
	}
	return current, nil
}

func (m *Materializer) log(ctx context.Context) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("component", "aggregate").Logger()
	return &l
}
