package recall

import (
	"context"
	"sync"
	"time"

	"github.com/louhangyu/zhipu/core"
)

// 加载失败后的重试间隔
const tableRetryInterval = 5 * time.Minute

// table 缓存召回源依赖的整表数据（每日数据集、运营条目、榜单）。
//
// 规则：
//   - 日期变化或超过 refresh（>0 时）后重新加载
//   - 加载失败时保留上一份数据，tableRetryInterval 内不再重试
//   - 并发调用共享一次加载
type table[T any] struct {
	load    func(ctx context.Context) (T, error)
	now     func() time.Time
	refresh time.Duration

	mu       sync.Mutex
	value    T
	day      string
	loadedAt time.Time
	failed   bool
	loaded   bool
}

func newTable[T any](now func() time.Time, refresh time.Duration, load func(ctx context.Context) (T, error)) *table[T] {
	return &table[T]{load: load, now: now, refresh: refresh}
}

// Get 返回当前数据；本次触发的加载失败时同时返回错误。
func (t *table[T]) Get(ctx context.Context) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	day := now.Format(core.DateLayout)
	if t.loaded && t.day == day {
		age := now.Sub(t.loadedAt)
		switch {
		case t.failed && age < tableRetryInterval:
			return t.value, nil
		case !t.failed && (t.refresh <= 0 || age < t.refresh):
			return t.value, nil
		}
	}

	v, err := t.load(ctx)
	t.loaded = true
	t.day = day
	t.loadedAt = now
	if err != nil {
		t.failed = true
		return t.value, err
	}
	t.failed = false
	t.value = v
	return v, nil
}
