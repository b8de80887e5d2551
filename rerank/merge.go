package rerank

import "github.com/louhangyu/zhipu/core"

// MergeDuplicates 按 (id, type) 去重。
//
// 规则：
//   - 保留召回类型偏好更高的一份，缺失的偏好按 DefaultAffinity
//   - 偏好相同保留先出现的
//   - 输出保持每个 key 首次出现的位置
func MergeDuplicates(items []*core.Item, affinity map[core.RecallType]float64) []*core.Item {
	pos := make(map[core.ItemKey]int, len(items))
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		i, ok := pos[it.Key()]
		if !ok {
			pos[it.Key()] = len(out)
			out = append(out, it)
			continue
		}
		if affinityOf(affinity, it.RecallType) > affinityOf(affinity, out[i].RecallType) {
			out[i] = it
		}
	}
	return out
}
