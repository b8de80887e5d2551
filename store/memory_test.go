package store

import (
	"context"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/core"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get(missing) error = %v, want not found", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	s.data["expired"] = &entry{value: []byte("x"), expire: time.Now().Add(-time.Second)}
	if _, err := s.Get(ctx, "expired"); !core.IsStoreNotFound(err) {
		t.Errorf("expired key should be a miss, got %v", err)
	}
	got, _ := s.BatchGet(ctx, []string{"expired"})
	if len(got) != 0 {
		t.Errorf("BatchGet() returned expired key")
	}
}

func TestMemoryStore_BatchGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.BatchSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, 60)
	got, err := s.BatchGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BatchGet() error = %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Errorf("BatchGet() = %v", got)
	}
}

func TestMemoryStore_ZSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for _, m := range []string{"p1", "p2", "p2", "p3", "p3", "p3"} {
		if _, err := s.ZIncrBy(ctx, "show", 1, m); err != nil {
			t.Fatalf("ZIncrBy() error = %v", err)
		}
	}

	tests := []struct {
		name        string
		start, stop int64
		want        []string
	}{
		{name: "all descending", start: 0, stop: -1, want: []string{"p3", "p2", "p1"}},
		{name: "top one", start: 0, stop: 0, want: []string{"p3"}},
		{name: "out of range", start: 5, stop: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ZRange(ctx, "show", tt.start, tt.stop)
			if err != nil {
				t.Fatalf("ZRange() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ZRange() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ZRange()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}

	score, err := s.ZScore(ctx, "show", "p3")
	if err != nil || score != 3 {
		t.Errorf("ZScore(p3) = %v, %v", score, err)
	}

	// 删除升序排名最低的一个
	if err := s.ZRemRangeByRank(ctx, "show", 0, 0); err != nil {
		t.Fatalf("ZRemRangeByRank() error = %v", err)
	}
	members, _ := s.ZRangeWithScores(ctx, "show", 0, -1)
	if len(members) != 2 || members[1].Member != "p2" || members[1].Score != 2 {
		t.Errorf("after trim = %v", members)
	}
}

func TestMemoryStore_Hash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.HSet(ctx, "h", "f1", []byte("1"))
	_ = s.HSet(ctx, "h", "f2", []byte("2"))
	v, err := s.HGet(ctx, "h", "f1")
	if err != nil || string(v) != "1" {
		t.Errorf("HGet() = %q, %v", v, err)
	}
	all, _ := s.HGetAll(ctx, "h")
	if len(all) != 2 {
		t.Errorf("HGetAll() = %v", all)
	}
	if _, err := s.HGet(ctx, "h", "nope"); !core.IsStoreNotFound(err) {
		t.Errorf("HGet(missing) error = %v", err)
	}
}

func TestHistoryKeys(t *testing.T) {
	tests := []struct {
		name      string
		id        core.Identity
		wantShow  string
		wantClick string
	}{
		{name: "uid wins", id: core.Identity{UID: "u1", UD: "d-1"}, wantShow: "uid_show1_u1", wantClick: "uid_click_u1"},
		{name: "ud cleaned", id: core.Identity{UD: "a-b-c"}, wantShow: "ud_show1_a_b_c", wantClick: "ud_click_a_b_c"},
		{name: "cold", id: core.Identity{}, wantShow: "", wantClick: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShowHistoryKey(tt.id); got != tt.wantShow {
				t.Errorf("ShowHistoryKey() = %q, want %q", got, tt.wantShow)
			}
			if got := ClickHistoryKey(tt.id); got != tt.wantClick {
				t.Errorf("ClickHistoryKey() = %q, want %q", got, tt.wantClick)
			}
		})
	}
}
