package rank

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/store"
)

// QualityTTL 是质量分缓存时间
const QualityTTL = 7 * 24 * time.Hour

// QualityKey 返回物品质量分的缓存 key。
func QualityKey(typ core.ItemType, id string) string {
	return fmt.Sprintf("paper:quality:%s:%s", typ, id)
}

// Quality 是一个物品在统计窗口内的曝光 / 点击汇总与质量分。
type Quality struct {
	Type      core.ItemType `json:"type"`
	Item      string        `json:"item"`
	UD        int64         `json:"ud"`
	UID       int64         `json:"uid"`
	Click     int64         `json:"click"`
	Show      int64         `json:"show"`
	CTR       float64       `json:"ctr"`
	AdjustCTR float64       `json:"adjust_ctr"`
	Quality   float64       `json:"quality"`
}

// NewQuality 由曝光 / 点击汇总计算质量分：0.8·click/(show+1000) + 0.1·ln((uids+1)/10)。
func NewQuality(typ core.ItemType, stat core.ItemStat) Quality {
	q := Quality{
		Type:  typ,
		Item:  stat.ItemID,
		UD:    stat.UDs,
		UID:   stat.UIDs,
		Click: stat.Clicks,
		Show:  stat.Shows,
	}
	if stat.Shows > 0 {
		q.CTR = float64(stat.Clicks) / float64(stat.Shows)
		q.AdjustCTR = float64(stat.Clicks) / float64(stat.Shows+1000)
	}
	q.Quality = 0.8*q.AdjustCTR + 0.1*math.Log(float64(stat.UIDs+1)/10)
	return q
}

// QualityStore 读写缓存中的质量分。
type QualityStore struct {
	cache *store.Cache
}

func NewQualityStore(cache *store.Cache) *QualityStore {
	return &QualityStore{cache: cache}
}

// Save 写入质量分。
func (s *QualityStore) Save(ctx context.Context, q Quality) error {
	return s.cache.SetEX(ctx, QualityKey(q.Type, q.Item), q, QualityTTL)
}

// Qualities 一次读取多个物品的质量分，缺失为 0。
func (s *QualityStore) Qualities(ctx context.Context, keys []core.ItemKey) map[core.ItemKey]float64 {
	out := make(map[core.ItemKey]float64, len(keys))
	if len(keys) == 0 {
		return out
	}
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = QualityKey(k.Type, k.ID)
	}
	raws, err := s.cache.MultiGet(ctx, cacheKeys)
	if err != nil {
		return out
	}
	for i, k := range keys {
		raw, ok := raws[cacheKeys[i]]
		if !ok {
			continue
		}
		var q Quality
		if err := json.Unmarshal(raw, &q); err != nil {
			continue
		}
		out[k] = q.Quality
	}
	return out
}
