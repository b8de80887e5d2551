// Package score 提供排序链路共用的分数变换。
package score

import (
	"math"

	"github.com/louhangyu/zhipu/core"
)

// normalizeEpsilon 避免最大值等于最小值时除零。
const normalizeEpsilon = 1e-10

// StandardScore 把分数原地替换为 Φ((x−μ)/σ)，σ 为总体标准差。
// 少于两个元素或方差为 0 时保持不变。
func StandardScore(xs []float64) []float64 {
	n := len(xs)
	if n < 2 {
		return xs
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mu := sum / float64(n)
	var dev float64
	for _, x := range xs {
		dev += (x - mu) * (x - mu)
	}
	dev /= float64(n)
	if dev == 0 {
		return xs
	}
	sigma := math.Sqrt(dev)
	for i, x := range xs {
		xs[i] = (1 + math.Erf((x-mu)/sigma/math.Sqrt2)) / 2
	}
	return xs
}

// StandardizeItems 对候选的 Score 做 StandardScore。
func StandardizeItems(items []*core.Item) {
	if len(items) < 2 {
		return
	}
	xs := make([]float64, len(items))
	for i, it := range items {
		xs[i] = it.Score
	}
	StandardScore(xs)
	for i, it := range items {
		it.Score = xs[i]
	}
}

// MinMax 返回 (x−min)/(max−min)，max 等于 min 时全部为 0。
func MinMax(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	span := hi - lo
	if span == 0 {
		span = normalizeEpsilon
	}
	for i, x := range xs {
		out[i] = (x - lo) / span
	}
	return out
}

// LogSafe 是 ln(x+1e-10)，用于引用数、浏览数这类可能为 0 的计数。
func LogSafe(x float64) float64 {
	return math.Log(x + normalizeEpsilon)
}

// Saturate 返回 1−1/e^{ln(x+2)}，把非负计数压缩到 [0.5, 1)。
func Saturate(x float64) float64 {
	if x < 0 {
		x = 0
	}
	return 1 - 1/math.Exp(math.Log(x+2))
}

// RankScore 返回第 i 名（从 0 开始）在 n 个中的分数 1−i/n。
func RankScore(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - float64(i)/float64(n)
}

// Cosine 返回两个向量的余弦相似度，任一为零向量或长度不同时返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
