package rerank

import (
	"context"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/randutil"
)

// StageB 是完整的 Stage B：先按曝光 / 点击衰减，再按召回类型偏好插排。
type StageB struct {
	Discount *Discount
	Affinity *Affinity
	Rand     randutil.Rand
}

// Apply 返回重排后的新切片。
func (s *StageB) Apply(ctx context.Context, id core.Identity, items []*core.Item) []*core.Item {
	items = s.Discount.Apply(ctx, id, items)
	var affinity map[core.RecallType]float64
	if s.Affinity != nil {
		affinity = s.Affinity.Predict(ctx, id)
	}
	return Interleave(items, affinity, s.Rand)
}
