package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/store"
)

// UserLog 发现活跃用户。
type UserLog interface {
	ActiveUIDs(ctx context.Context, since time.Time) ([]string, error)
	ActiveUDs(ctx context.Context, since time.Time, minDays int) ([]string, error)
}

// Preloader 批量物化候选并写入物品缓存。
type Preloader interface {
	PreloadItems(ctx context.Context, refs []core.ItemKey, useCache bool) error
}

// Deps 是各策略共用的依赖，由入口处组装一次。
//
// 约定：
//   - Refine 是训练写推荐集合前的节点链（去重 → Stage A → 插排）
//   - Resorter 与 Affinity 供增量更新与关键词预加载使用，只作用于新召回的候选
//   - Queue 为 nil 时，训练后的物化直接调用 Preloader
type Deps struct {
	Cache      *store.Cache
	Records    core.RecordStore
	Search     core.SearchService
	Embedding  core.EmbeddingService
	Translator core.Translator
	Neighbours recall.Neighbours
	Newly      core.NewlyStats
	Profiles   core.ProfileStore
	Users      UserLog
	StageB     *rerank.StageB
	Refine     *pipeline.Pipeline
	Resorter   *rank.Resorter
	Affinity   *rerank.Affinity
	Preloader  Preloader
	Queue      core.JobQueue
	Now        func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// refine 对一个用户的候选执行 Refine 节点链，没有配置时原样返回。
func (d *Deps) refine(ctx context.Context, id core.Identity, items []*core.Item) ([]*core.Item, error) {
	if d.Refine == nil || len(items) == 0 {
		return items, nil
	}
	return d.Refine.Run(ctx, core.NewRecommendContext(id, "", len(items)), items)
}

func logger(ctx context.Context, strategy string) *zerolog.Logger {
	l := logging.Ctx(ctx).With().Str("component", "orchestrator").Str("strategy", strategy).Logger()
	return &l
}
