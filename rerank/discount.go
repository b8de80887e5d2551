// Package rerank 是 Stage B：曝光 / 点击衰减、召回类型偏好、去重合并与多样性插排。
package rerank

import (
	"context"
	"math"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/store"
)

// 衰减的取模周期：曝光 100 次、点击 15 次后重新开始衰减
const (
	showPeriod  = 100
	clickPeriod = 15
)

// Discount 按曝光 / 点击历史衰减候选分数。
//
// 规则：
//   - 曝光过：score × exp(−sqrt(show mod 100))
//   - 点击过：score × exp(−(click mod 15))
//   - 先读 uid 集合，为空时回退到 ud 集合
//   - 只缩放分数，不改变顺序
type Discount struct {
	kv core.KeyValueStore
}

func NewDiscount(kv core.KeyValueStore) *Discount {
	return &Discount{kv: kv}
}

// Apply 原地衰减 items 的分数并返回 items。
func (d *Discount) Apply(ctx context.Context, id core.Identity, items []*core.Item) []*core.Item {
	if d == nil || d.kv == nil || len(items) == 0 {
		return items
	}
	shows := d.history(ctx, id, store.ShowHistoryKey)
	clicks := d.history(ctx, id, store.ClickHistoryKey)
	if len(shows) == 0 && len(clicks) == 0 {
		return items
	}
	for _, it := range items {
		it.Score *= Factor(shows[it.ID], clicks[it.ID])
	}
	return items
}

// Factor 返回给定曝光 / 点击次数的衰减系数，取值 (0, 1]。
func Factor(show, click float64) float64 {
	f := 1.0
	if show > 0 {
		f *= math.Exp(-math.Sqrt(math.Mod(show, showPeriod)))
	}
	if click > 0 {
		f *= math.Exp(-math.Mod(click, clickPeriod))
	}
	return f
}

// history 读取 member → 次数，uid 集合为空时回退到 ud 集合。
func (d *Discount) history(ctx context.Context, id core.Identity, keyOf func(core.Identity) string) map[string]float64 {
	var candidates []core.Identity
	if id.UID != "" {
		candidates = append(candidates, core.Identity{UID: id.UID})
	}
	if id.UD != "" {
		candidates = append(candidates, core.Identity{UD: id.UD})
	}
	for _, c := range candidates {
		key := keyOf(c)
		members, err := d.kv.ZRangeWithScores(ctx, key, 0, store.HistoryLimit-1)
		if err != nil {
			if !core.IsStoreNotFound(err) {
				logging.Ctx(ctx).Warn().Err(err).Str("component", "rerank").Str("key", key).Msg("read history failed")
			}
			continue
		}
		if len(members) == 0 {
			continue
		}
		out := make(map[string]float64, len(members))
		for _, m := range members {
			out[m.Member] = m.Score
		}
		return out
	}
	return nil
}
