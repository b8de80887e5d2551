package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/store"
)

// 运营置顶缓存
const (
	TopKey = "top:paper:v1"
	TopTTL = 24 * time.Hour
)

// TopPickLog 读取当前生效的置顶条目。
type TopPickLog interface {
	TopPicks(ctx context.Context, now time.Time, limit int) ([]core.EditorPick, error)
}

// MakeTop 维护运营置顶列表：Train 把当前生效的置顶条目写入缓存，TopItems 在下发时读取。
type MakeTop struct {
	picks   TopPickLog
	cache   *store.Cache
	preload Preloader
	now     func() time.Time
}

func NewMakeTop(picks TopPickLog, cache *store.Cache, preload Preloader) *MakeTop {
	return &MakeTop{picks: picks, cache: cache, preload: preload, now: time.Now}
}

// WithClock 替换当前时间（测试使用）
func (m *MakeTop) WithClock(now func() time.Time) *MakeTop {
	m.now = now
	return m
}

// Train 写入当前生效的置顶条目，并不使用缓存重新物化其中的论文。
func (m *MakeTop) Train(ctx context.Context) ([]core.EditorPick, error) {
	picks, err := m.picks.TopPicks(ctx, m.now(), 0)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: top picks: %w", err)
	}
	if picks == nil {
		picks = []core.EditorPick{}
	}
	var pubs []core.ItemKey
	for i := range picks {
		if id, typ := picks[i].ItemRef(); typ == core.ItemPub && id != "" {
			pubs = append(pubs, core.ItemKey{ID: id, Type: typ})
		}
	}
	if m.preload != nil && len(pubs) > 0 {
		if err := m.preload.PreloadItems(ctx, pubs, false); err != nil {
			logger(ctx, "make_top").Warn().Err(err).Int("pubs", len(pubs)).Msg("preload top pubs failed")
		}
	}
	if err := m.cache.SetEX(ctx, TopKey, picks, TopTTL); err != nil {
		return nil, fmt.Errorf("orchestrator: save top picks: %w", err)
	}
	logger(ctx, "make_top").Info().Int("picks", len(picks)).Msg("top picks saved")
	return picks, nil
}

// TopItems 返回置顶候选，按置顶分数降序；缓存缺失时为空。
func (m *MakeTop) TopItems(ctx context.Context) []*core.Item {
	var picks []core.EditorPick
	if err := m.cache.Get(ctx, TopKey, &picks); err != nil {
		if !core.IsStoreNotFound(err) {
			logger(ctx, "make_top").Warn().Err(err).Msg("read top picks failed")
		}
		return nil
	}
	now := m.now()
	items := make([]*core.Item, 0, len(picks))
	for _, p := range picks {
		it := recall.TopItem(p, now)
		if it.ID == "" {
			continue
		}
		items = append(items, it)
	}
	rerank.SortByScore(items)
	return items
}
