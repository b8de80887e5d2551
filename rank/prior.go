package rank

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/model"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/store"
)

// NoPrior 表示没有点击率先验。
const NoPrior = -1.0

// CTRPrior 返回候选的点击率先验，与 features 一一对应。
//
// 约定：
//   - 大于 0：覆盖兴趣 / 属性混合分
//   - 等于 0：丢弃该候选
//   - NoPrior：使用混合分
type CTRPrior interface {
	Prior(ctx context.Context, uid string, features []Feature, interest []float64) []float64
}

// ModelPrior 用打分模型（默认 LR）为候选给出点击率先验，模型报错的候选视为没有先验。
//
// 约定：
//   - 只为用户曝光过的候选打分，其余候选为 NoPrior；History 为 nil 时不打分
//   - LR 输出在 (0, 1) 内，因此不会触发"先验为 0 时丢弃"
//
// 模型输入特征：citation、views、district、age_hours、interest、shows。
type ModelPrior struct {
	Model   model.RankModel
	History core.KeyValueStore
}

func (p *ModelPrior) Prior(ctx context.Context, uid string, features []Feature, interest []float64) []float64 {
	out := make([]float64, len(features))
	for i := range out {
		out[i] = NoPrior
	}
	if p.Model == nil {
		return out
	}
	shows := p.shows(ctx, uid)
	if len(shows) == 0 {
		return out
	}
	for i, f := range features {
		n, ok := shows[f.Key.ID]
		if !ok {
			continue
		}
		x := map[string]float64{
			"citation": f.Citation,
			"views":    f.Views,
			"district": f.District,
			"interest": interest[i],
			"shows":    n,
		}
		if !f.TS.IsZero() {
			x["age_hours"] = ageHours(f.TS)
		}
		s, err := p.Model.Predict(x)
		if err != nil {
			continue
		}
		out[i] = s
	}
	return out
}

// shows 读取用户的曝光历史：member → 次数。
func (p *ModelPrior) shows(ctx context.Context, uid string) map[string]float64 {
	if p.History == nil || uid == "" {
		return nil
	}
	key := store.ShowHistoryKey(core.Identity{UID: uid})
	members, err := p.History.ZRangeWithScores(ctx, key, 0, store.HistoryLimit-1)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			logging.Ctx(ctx).Warn().Err(err).Str("component", "rank").Str("key", key).Msg("read show history failed")
		}
		return nil
	}
	out := make(map[string]float64, len(members))
	for _, m := range members {
		out[m.Member] = m.Score
	}
	return out
}
