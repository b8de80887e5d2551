package recall

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/metrics"
)

// Fanout 是一个 Recall Node：为一个用户并发执行多个召回源，返回按类型合并的结果。
//
// 规则：
//   - 并发数受 MaxConcurrent 限制（0 表示不限制）
//   - 每个召回源有独立的超时
//   - 单个召回源失败或超时只记录，不影响其他召回源
//   - 同一类型内按 Sources 顺序拼接，结果与调度顺序无关
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，按 ValidItemTypes 顺序展开后追加到输入之后。
func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	got, err := n.Recall(ctx, rctx)
	if err != nil {
		return nil, err
	}
	return append(items, got.Flatten()...), nil
}

// Recall 执行全部召回源并合并，只有 ctx 被取消时返回错误。
func (n *Fanout) Recall(ctx context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	results, err := n.RecallEach(ctx, rctx)
	if err != nil {
		return nil, err
	}
	out := core.ItemsByType{}
	for _, r := range results {
		for t, items := range r {
			out.Add(t, items...)
		}
	}
	return out, nil
}

// RecallEach 与 Recall 相同，但按 Sources 的下标分别返回每个召回源的结果，失败的为空 map。
func (n *Fanout) RecallEach(ctx context.Context, rctx *core.RecommendContext) ([]core.ItemsByType, error) {
	results := make([]core.ItemsByType, len(n.Sources))
	if len(n.Sources) == 0 {
		return results, nil
	}

	var eg errgroup.Group

	// 限流：使用 semaphore 控制并发数
	sem := make(chan struct{}, max(n.MaxConcurrent, 1))

	for i, s := range n.Sources {
		eg.Go(func() error {
			if n.MaxConcurrent > 0 {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results[i] = core.ItemsByType{}
					return nil
				}
			}

			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			start := time.Now()
			got, err := s.Recall(recallCtx, rctx)
			metrics.RecordRecall(s.Name(), time.Since(start), got.Len(), err)
			if err != nil {
				// 超时或错误时返回空结果，不中断其他召回源
				sourceLog(ctx, s.Name()).Warn().Err(err).
					Str("user", rctx.UserID()).Msg("recall failed")
				got = core.ItemsByType{}
			}
			if got == nil {
				got = core.ItemsByType{}
			}
			results[i] = got
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
