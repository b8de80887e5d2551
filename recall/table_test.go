package recall

import (
	"context"
	"testing"
	"time"
)

func TestTable_Get(t *testing.T) {
	now := testNow
	calls := 0
	fail := false
	tbl := newTable(func() time.Time { return now }, time.Hour, func(context.Context) (int, error) {
		calls++
		if fail {
			return 0, errRemote
		}
		return calls, nil
	})
	ctx := context.Background()

	if v, err := tbl.Get(ctx); err != nil || v != 1 {
		t.Fatalf("first Get = %d, %v", v, err)
	}
	now = now.Add(30 * time.Minute)
	if v, _ := tbl.Get(ctx); v != 1 || calls != 1 {
		t.Fatalf("within refresh: value = %d, calls = %d", v, calls)
	}

	now = now.Add(31 * time.Minute)
	fail = true
	v, err := tbl.Get(ctx)
	if err == nil || v != 1 {
		t.Fatalf("failed reload = %d, %v; want previous value with error", v, err)
	}
	now = now.Add(time.Minute)
	if _, err := tbl.Get(ctx); err != nil || calls != 2 {
		t.Fatalf("retry too early: err = %v, calls = %d", err, calls)
	}

	now = now.Add(tableRetryInterval)
	fail = false
	if v, err := tbl.Get(ctx); err != nil || v != 3 {
		t.Fatalf("retry = %d, %v", v, err)
	}
}

func TestTable_ReloadsOnNewDay(t *testing.T) {
	now := testNow
	calls := 0
	tbl := newTable(func() time.Time { return now }, 0, func(context.Context) (int, error) {
		calls++
		return calls, nil
	})
	ctx := context.Background()
	tbl.Get(ctx)
	now = now.Add(6 * time.Hour)
	tbl.Get(ctx)
	if calls != 1 {
		t.Fatalf("same day calls = %d, want 1", calls)
	}
	now = now.Add(24 * time.Hour)
	if v, _ := tbl.Get(ctx); v != 2 {
		t.Fatalf("next day value = %d, want 2", v)
	}
}
