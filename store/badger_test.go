package store

import (
	"context"
	"testing"

	"github.com/louhangyu/zhipu/core"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	if _, err := s.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), 60); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if err := s.BatchSet(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}); err != nil {
		t.Fatalf("BatchSet() error = %v", err)
	}
	all, err := s.BatchGet(ctx, []string{"a", "b", "zzz"})
	if err != nil || len(all) != 2 {
		t.Errorf("BatchGet() = %v, %v", all, err)
	}

	_ = s.Delete(ctx, "k")
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("Get() after delete error = %v", err)
	}
}

func TestBadgerStore_ZSet(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	for _, m := range []string{"p1", "p2", "p2"} {
		if _, err := s.ZIncrBy(ctx, "click", 1, m); err != nil {
			t.Fatalf("ZIncrBy() error = %v", err)
		}
	}
	members, err := s.ZRangeWithScores(ctx, "click", 0, -1)
	if err != nil {
		t.Fatalf("ZRangeWithScores() error = %v", err)
	}
	if len(members) != 2 || members[0].Member != "p2" || members[0].Score != 2 {
		t.Errorf("ZRangeWithScores() = %v", members)
	}

	if err := s.ZRemRangeByRank(ctx, "click", 0, 0); err != nil {
		t.Fatalf("ZRemRangeByRank() error = %v", err)
	}
	if _, err := s.ZScore(ctx, "click", "p1"); !core.IsStoreNotFound(err) {
		t.Errorf("p1 should be trimmed, got %v", err)
	}
}

func TestBadgerStore_Hash(t *testing.T) {
	ctx := context.Background()
	s := newTestBadgerStore(t)

	_ = s.HSet(ctx, "h", "a", []byte("1"))
	_ = s.HSet(ctx, "h", "b", []byte("2"))
	_ = s.HSet(ctx, "other", "a", []byte("3"))
	all, err := s.HGetAll(ctx, "h")
	if err != nil || len(all) != 2 || string(all["b"]) != "2" {
		t.Errorf("HGetAll() = %v, %v", all, err)
	}
}
