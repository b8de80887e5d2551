package recall

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/datasource"
)

const testUID = "5f0a1b2c3d4e5f6a7b8c9d0e"

var (
	testNow   = time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	errRemote = errors.New("remote unavailable")
)

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

type fakeProfiles map[string]*core.UserProfile

func (f fakeProfiles) Profile(_ context.Context, uid string) (*core.UserProfile, error) {
	if p, ok := f[uid]; ok {
		return p, nil
	}
	return core.NewUserProfile(uid), nil
}

func (f fakeProfiles) Profiles(ctx context.Context, uids []string) ([]*core.UserProfile, error) {
	out := make([]*core.UserProfile, 0, len(uids))
	for _, uid := range uids {
		p, _ := f.Profile(ctx, uid)
		out = append(out, p)
	}
	return out, nil
}

type fakeSearch struct {
	mu      sync.Mutex
	hits    map[string][]core.SearchHit
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, k int) ([]core.SearchHit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	hits := f.hits[query]
	return hits[:min(k, len(hits))], nil
}

type fakeRecords map[string]aggregate.Record

func (f fakeRecords) Materialize(_ context.Context, id string, _ core.ItemType, _ bool) (aggregate.Record, error) {
	if r, ok := f[id]; ok {
		return r, nil
	}
	return aggregate.Record{}, nil
}

type fakeDataset struct {
	behavior map[core.ItemType]map[core.Identity][]datasource.BehaviorRec
	follow   map[string][]datasource.FollowedAuthor
	cold     []datasource.ColdRec
	err      error
}

func (f *fakeDataset) Behavior(_ context.Context, t core.ItemType) (map[core.Identity][]datasource.BehaviorRec, string, error) {
	return f.behavior[t], "cf_2026-03-10.json.gz", f.err
}

func (f *fakeDataset) Follow(context.Context) (map[string][]datasource.FollowedAuthor, string, error) {
	return f.follow, "follow_2026-03-10.json", f.err
}

func (f *fakeDataset) Cold(context.Context) ([]datasource.ColdRec, string, error) {
	return f.cold, "cold.json", f.err
}

type fakeClicks struct{ counts []core.ItemCount }

func (f *fakeClicks) ClickCounts(context.Context, int, time.Time) ([]core.ItemCount, error) {
	return f.counts, nil
}

type fakePicks struct {
	picks []core.EditorPick
	top   []core.EditorPick
}

func (f *fakePicks) EditorPicks(context.Context, time.Time, bool) ([]core.EditorPick, error) {
	return f.picks, nil
}

func (f *fakePicks) TopPicks(context.Context, time.Time, int) ([]core.EditorPick, error) {
	return f.top, nil
}

type fakeViews map[string]int

func (f fakeViews) Views(_ context.Context, _ core.ItemType, id string) (int, error) {
	return f[id], nil
}

type fakeNewly map[string]core.KeywordNewly

func (f fakeNewly) Newly(context.Context, string) (map[string]core.KeywordNewly, error) { return f, nil }

func (f fakeNewly) Train(context.Context, string, bool) (map[string]core.KeywordNewly, error) {
	return f, nil
}

func ids(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
