package pipeline

import (
	"context"

	"github.com/louhangyu/zhipu/core"
)

// Kind 标记 Node 所处的阶段，用于日志与按阶段打点。
type Kind string

const (
	KindRecall      Kind = "recall"      // 召回：生成候选集
	KindFilter      Kind = "filter"      // 过滤：剔除不符合约束的候选
	KindRank        Kind = "rank"        // 排序：Stage A 打分
	KindReRank      Kind = "rerank"      // 重排：合并去重、衰减、打散
	KindPostProcess Kind = "postprocess" // 后处理：截断、补充展示字段
)

// Node 是推荐链路的最小可组合单元，统一为"输入 items -> 输出 items"。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
