package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/store"
)

const (
	testUID  = "5f0a1b2c3d4e5f6a7b8c9d0e"
	otherUID = "5f0a1b2c3d4e5f6a7b8c9d0f"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

func fixedClock() time.Time { return testNow }

func newTestDeps() *Deps {
	return &Deps{
		Cache: store.NewCache(store.NewMemoryStore()),
		Now:   fixedClock,
	}
}

// fakeSource 按身份返回固定的论文 id，分数从 score 开始每个递减 0.01。
type fakeSource struct {
	name  string
	rt    core.RecallType
	score float64
	items map[core.Identity][]string

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string                { return f.name }
func (f *fakeSource) RecallType() core.RecallType { return f.rt }

func (f *fakeSource) Recall(_ context.Context, rctx *core.RecommendContext) (core.ItemsByType, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := core.ItemsByType{}
	for i, id := range f.items[rctx.Identity.Canonical()] {
		out.Add(core.ItemPub, core.NewItem(id, core.ItemPub, f.score-float64(i)*0.01, f.rt))
	}
	return out, nil
}

// fakeBatch 额外暴露数据集中的全部用户。
type fakeBatch struct {
	*fakeSource
}

func (f fakeBatch) RecallAll(ctx context.Context) (map[core.Identity]core.ItemsByType, error) {
	out := make(map[core.Identity]core.ItemsByType)
	for id := range f.items {
		got, _ := f.Recall(ctx, core.NewRecommendContext(id, "", 0))
		out[id] = got
	}
	return out, nil
}

type fakeUsers struct {
	uids []string
	uds  []string
}

func (f fakeUsers) ActiveUIDs(context.Context, time.Time) ([]string, error) { return f.uids, nil }

func (f fakeUsers) ActiveUDs(context.Context, time.Time, int) ([]string, error) { return f.uds, nil }

type fakeQueue struct {
	mu   sync.Mutex
	jobs []core.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job core.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	hits    map[string][]core.SearchHit
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, k int) ([]core.SearchHit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	hits := f.hits[query]
	return hits[:min(k, len(hits))], nil
}

func (f *fakeSearch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeRecords 中存在的文档 id。
type fakeRecords map[string]bool

func (f fakeRecords) FindByID(_ context.Context, _, id string) (core.Document, error) {
	if !f[id] {
		return nil, core.ErrStoreNotFound
	}
	return core.Document{"id": id}, nil
}

func (f fakeRecords) FindByIDs(_ context.Context, _ string, ids []string) ([]core.Document, error) {
	var out []core.Document
	for _, id := range ids {
		if f[id] {
			out = append(out, core.Document{"id": id})
		}
	}
	return out, nil
}

func (f fakeRecords) FindAll(context.Context, string, int) ([]core.Document, error) { return nil, nil }

type fakeNewly map[string]map[string]core.KeywordNewly

func (f fakeNewly) Newly(_ context.Context, uid string) (map[string]core.KeywordNewly, error) {
	return f[uid], nil
}

func (f fakeNewly) Train(ctx context.Context, uid string, _ bool) (map[string]core.KeywordNewly, error) {
	return f.Newly(ctx, uid)
}

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

// fakeEmbedding 把文本映射为固定向量，未知文本为零向量。
type fakeEmbedding map[string][]float64

func (f fakeEmbedding) Embed(_ context.Context, text string) ([]float64, error) {
	if v, ok := f[text]; ok {
		return v, nil
	}
	return []float64{0, 0}, nil
}

func (f fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

func ids(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
