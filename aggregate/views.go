package aggregate

import (
	"context"
	"strconv"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// 浏览量计数器的有序集合 key，member 为物品 id。
const (
	PubViewsKey    = "PAGE_VIEWED::PUB"
	PersonViewsKey = "PAGE_VIEWED::PERSON"
)

// 浏览量大于该值时才写入短缓存。
const (
	viewsCacheMin = 3
	viewsCacheTTL = 7 * 24 * time.Hour
)

// ViewCounter 返回物品的累计浏览量。
//
// 实现：
//   - StoreViewCounter（有序集合计数）
type ViewCounter interface {
	Views(ctx context.Context, typ core.ItemType, id string) (int, error)
}

// StoreViewCounter 从 KeyValueStore 的有序集合读取浏览量，成员不存在时为 0。
type StoreViewCounter struct {
	kv core.KeyValueStore
}

func NewStoreViewCounter(kv core.KeyValueStore) *StoreViewCounter {
	return &StoreViewCounter{kv: kv}
}

func (c *StoreViewCounter) Views(ctx context.Context, typ core.ItemType, id string) (int, error) {
	key := viewsKey(typ)
	if key == "" || c.kv == nil {
		return 0, nil
	}
	score, err := c.kv.ZScore(ctx, key, id)
	if core.IsStoreNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(score), nil
}

// Incr 累加一次浏览，返回新的浏览量。
func (c *StoreViewCounter) Incr(ctx context.Context, typ core.ItemType, id string) (int, error) {
	key := viewsKey(typ)
	if key == "" || c.kv == nil {
		return 0, nil
	}
	score, err := c.kv.ZIncrBy(ctx, key, 1, id)
	return int(score), err
}

func viewsKey(typ core.ItemType) string {
	switch typ {
	case core.ItemPub:
		return PubViewsKey
	case core.ItemPerson:
		return PersonViewsKey
	default:
		return ""
	}
}

// fetchViews 先读 "{计数器}:{id}" 短缓存，未命中时读计数器；
// 计数器不可用时返回 -1，调用方保留原值。
func (m *Materializer) fetchViews(ctx context.Context, typ core.ItemType, id string, useCache bool) int {
	key := viewsKey(typ) + ":" + id
	if useCache {
		if raw, err := m.cache.GetString(ctx, key); err == nil {
			if n, err := strconv.Atoi(raw); err == nil {
				return n
			}
		}
	}
	if m.views == nil {
		return -1
	}
	n, err := m.views.Views(ctx, typ, id)
	if err != nil {
		m.log(ctx).Warn().Err(err).Str("id", id).Str("type", string(typ)).Msg("fetch views failed")
		return -1
	}
	if n > viewsCacheMin {
		if err := m.cache.SetString(ctx, key, strconv.Itoa(n), viewsCacheTTL); err != nil {
			m.log(ctx).Warn().Err(err).Str("key", key).Msg("cache views failed")
		}
	}
	return n
}

var _ ViewCounter = (*StoreViewCounter)(nil)
