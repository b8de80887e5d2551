package rerank

import (
	"sort"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

const interleaveEpsilon = 1e-4

// Interleave 按召回类型偏好把不同召回类型的候选交错排列。
//
// 实现：
//   - 只有一种召回类型时按分数稳定降序
//   - 按召回类型分组，组内按分数从高到低出队
//   - 召回类型按偏好降序，接受概率 (p−min)/(max−min+1e-4)
//   - 第 i 个类型依次尝试位置 i, i+gap, ...（gap 为类型数），每次以接受概率放入该类型当前最高分
//   - 剩余空位按类型轮询补齐
func Interleave(items []*core.Item, affinity map[core.RecallType]float64, r randutil.Rand) []*core.Item {
	sorted := make([]*core.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	groups := make(map[core.RecallType][]*core.Item)
	var types []core.RecallType
	for _, it := range sorted {
		if _, ok := groups[it.RecallType]; !ok {
			types = append(types, it.RecallType)
		}
		groups[it.RecallType] = append(groups[it.RecallType], it)
	}
	if len(types) <= 1 {
		out := make([]*core.Item, len(items))
		copy(out, items)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		return out
	}
	if r == nil {
		r = randutil.NewTimeSeeded()
	}

	sort.SliceStable(types, func(i, j int) bool {
		pi, pj := affinityOf(affinity, types[i]), affinityOf(affinity, types[j])
		if pi != pj {
			return pi > pj
		}
		return types[i] < types[j]
	})
	lo, hi := affinityOf(affinity, types[0]), affinityOf(affinity, types[0])
	for _, t := range types {
		p := affinityOf(affinity, t)
		lo, hi = min(lo, p), max(hi, p)
	}

	pop := func(t core.RecallType) *core.Item {
		g := groups[t]
		if len(g) == 0 {
			return nil
		}
		it := g[len(g)-1]
		groups[t] = g[:len(g)-1]
		return it
	}

	n := len(sorted)
	out := make([]*core.Item, n)
	gap := len(types)
	for i, t := range types {
		prob := (affinityOf(affinity, t) - lo) / (hi - lo + interleaveEpsilon)
		for j := i; j < n && len(groups[t]) > 0; j += gap {
			if r.Float64() < prob {
				out[j] = pop(t)
			}
		}
	}

	cursor := 0
	for j := range out {
		if out[j] != nil {
			continue
		}
		for k := 0; k < gap; k++ {
			t := types[(cursor+k)%gap]
			if it := pop(t); it != nil {
				out[j] = it
				cursor = (cursor + k + 1) % gap
				break
			}
		}
	}
	return out
}
