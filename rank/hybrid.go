package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/score"
)

// 属性分权重
const (
	weightCitation = 0.2
	weightView     = 0.1
	weightDistrict = 0.4
	weightQuality  = 0.3

	// interestRatio 是兴趣分在混合分中的占比
	interestRatio = 0.7
)

// QualityReader 批量读取质量分。
type QualityReader interface {
	Qualities(ctx context.Context, keys []core.ItemKey) map[core.ItemKey]float64
}

// Similarity 计算用户与物品文本的兴趣相似度。
type Similarity interface {
	Similarities(ctx context.Context, id core.Identity, texts []string) []float64
}

// Scored 是 Stage A 的一个打分结果。
type Scored struct {
	Key   core.ItemKey
	Score float64
}

// HybridRank 是 Stage A 打分。
//
// 规则：
//   - 属性分 = (0.2·引用 + 0.1·浏览 + 0.4·分区 + 0.3·质量) × exp(−入库小时数)，各项先做 min-max 归一化
//   - 混合分 = 0.7·兴趣 + 0.3·属性；点击率先验 > 0 时覆盖，= 0 时丢弃
//   - 最后做 Φ 标准化并降序
//   - 没有任何用户标识时只用属性分
type HybridRank struct {
	Quality  QualityReader
	Interest Similarity
	Prior    CTRPrior
	Now      func() time.Time
}

func (h *HybridRank) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Rank 为 features 打分，返回值按分数降序。
func (h *HybridRank) Rank(ctx context.Context, id core.Identity, features []Feature) []Scored {
	if len(features) == 0 {
		return nil
	}
	property := h.PropertyScores(ctx, features)

	out := make([]Scored, 0, len(features))
	if id.IsCold() {
		for i, f := range features {
			out = append(out, Scored{Key: f.Key, Score: property[i]})
		}
		standardize(out)
		return out
	}

	texts := make([]string, len(features))
	for i, f := range features {
		texts[i] = f.Text
	}
	interest := make([]float64, len(features))
	if h.Interest != nil {
		interest = h.Interest.Similarities(ctx, id, texts)
	} else {
		for i := range interest {
			interest[i] = MinSimilarity
		}
	}
	var prior []float64
	if h.Prior != nil && id.UID != "" {
		prior = h.Prior.Prior(ctx, id.UID, features, interest)
	}

	for i, f := range features {
		s := interestRatio*interest[i] + (1-interestRatio)*property[i]
		if prior != nil {
			switch {
			case prior[i] > 0:
				s = prior[i]
			case prior[i] == 0:
				continue
			}
		}
		out = append(out, Scored{Key: f.Key, Score: s})
	}
	standardize(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// PropertyScores 返回与 features 一一对应的属性分。
func (h *HybridRank) PropertyScores(ctx context.Context, features []Feature) []float64 {
	n := len(features)
	citation := make([]float64, n)
	views := make([]float64, n)
	district := make([]float64, n)
	quality := make([]float64, n)
	keys := make([]core.ItemKey, n)
	for i, f := range features {
		citation[i] = score.LogSafe(f.Citation)
		views[i] = score.LogSafe(f.Views)
		district[i] = f.District
		keys[i] = f.Key
	}
	if h.Quality != nil {
		q := h.Quality.Qualities(ctx, keys)
		for i, k := range keys {
			quality[i] = q[k]
		}
	}
	citation = score.MinMax(citation)
	views = score.MinMax(views)
	district = score.MinMax(district)
	quality = score.MinMax(quality)

	now := h.now()
	out := make([]float64, n)
	for i, f := range features {
		decay := 1.0
		if !f.TS.IsZero() {
			decay = math.Exp(-ageHoursAt(now, f.TS))
		}
		out[i] = decay * (weightCitation*citation[i] + weightView*views[i] +
			weightDistrict*district[i] + weightQuality*quality[i])
	}
	return out
}

func standardize(xs []Scored) {
	vals := make([]float64, len(xs))
	for i, s := range xs {
		vals[i] = s.Score
	}
	score.StandardScore(vals)
	for i := range xs {
		xs[i].Score = vals[i]
	}
}

// ageHoursAt 返回 ts 距 now 的小时数，未来时间按 0 处理。
func ageHoursAt(now, ts time.Time) float64 {
	return math.Max(0, now.Sub(ts).Hours())
}

func ageHours(ts time.Time) float64 { return ageHoursAt(time.Now(), ts) }
