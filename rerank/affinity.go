package rerank

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

// AffinityTTL 是召回类型偏好的缓存时间
const AffinityTTL = 30 * 24 * time.Hour

// DefaultAffinity 是偏好表中缺失的召回类型的偏好值
const DefaultAffinity = 0.1

// AffinityKey 返回用户召回类型偏好的缓存 key。
func AffinityKey(uid string) string { return "recall_favorite_prob_" + uid }

// Affinity 读取用户对各召回类型的偏好概率。
//
// 约定：
//   - 值是未压缩的 JSON 对象 {recall_type: prob}，由偏好打分任务写入
//   - 没有 uid 或缓存缺失时，每个召回类型取一个均匀随机值
type Affinity struct {
	store core.Store
	rand  randutil.Rand
}

func NewAffinity(s core.Store, r randutil.Rand) *Affinity {
	if r == nil {
		r = randutil.NewTimeSeeded()
	}
	return &Affinity{store: s, rand: r}
}

// Predict 返回召回类型偏好。
func (a *Affinity) Predict(ctx context.Context, id core.Identity) map[core.RecallType]float64 {
	if id.UID != "" && a.store != nil {
		if probs, ok := a.load(ctx, id.UID); ok {
			return probs
		}
	}
	out := make(map[core.RecallType]float64, len(core.RecallTypes))
	for _, rt := range core.RecallTypes {
		out[rt] = a.rand.Float64()
	}
	return out
}

func (a *Affinity) load(ctx context.Context, uid string) (map[core.RecallType]float64, bool) {
	raw, err := a.store.Get(ctx, AffinityKey(uid))
	if err != nil {
		if !core.IsStoreNotFound(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "rerank").Str("uid", uid).Msg("read affinity failed")
		}
		return nil, false
	}
	var probs map[core.RecallType]float64
	if err := json.Unmarshal(raw, &probs); err != nil || len(probs) == 0 {
		return nil, false
	}
	return probs, true
}

// Save 写入用户的召回类型偏好。
func (a *Affinity) Save(ctx context.Context, uid string, probs map[core.RecallType]float64) error {
	raw, err := json.Marshal(probs)
	if err != nil {
		return err
	}
	return a.store.Set(ctx, AffinityKey(uid), raw, int(AffinityTTL/time.Second))
}

func affinityOf(affinity map[core.RecallType]float64, rt core.RecallType) float64 {
	if p, ok := affinity[rt]; ok {
		return p
	}
	return DefaultAffinity
}
