package rerank

import (
	"context"
	"math"
	"testing"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/pkg/randutil"
	"github.com/louhangyu/zhipu/store"
)

const testUID = "5f0a1b2c3d4e5f6a7b8c9d0e"

// constRand 的 Float64 总是返回 v。
type constRand struct{ v float64 }

func (c constRand) Float64() float64            { return c.v }
func (c constRand) Intn(int) int                { return 0 }
func (c constRand) Shuffle(int, func(i, j int)) {}

func item(id string, score float64, rt core.RecallType) *core.Item {
	return &core.Item{ID: id, Type: core.ItemPub, Score: score, RecallType: rt}
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

func TestFactor(t *testing.T) {
	tests := []struct {
		name        string
		show, click float64
		want        float64
	}{
		{"untouched", 0, 0, 1},
		{"shown once", 1, 0, math.Exp(-1)},
		{"shown 104 times", 104, 0, math.Exp(-2)},
		{"clicked twice", 0, 2, math.Exp(-2)},
		{"shown and clicked", 4, 1, math.Exp(-2) * math.Exp(-1)},
		{"click period resets", 0, 15, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Factor(tt.show, tt.click); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Factor(%v, %v) = %v, want %v", tt.show, tt.click, got, tt.want)
			}
		})
	}
}

func TestFactor_Monotonic(t *testing.T) {
	prev := Factor(0, 0)
	for show := 1.0; show < showPeriod; show++ {
		f := Factor(show, 0)
		if f > prev {
			t.Fatalf("factor grew at show=%v: %v > %v", show, f, prev)
		}
		prev = f
	}
}

func TestDiscount_Apply(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	_ = kv.ZAdd(ctx, "ud_show1_d_1", 1, "a")
	_ = kv.ZAdd(ctx, "uid_click_"+testUID, 1, "b")

	d := NewDiscount(kv)
	items := []*core.Item{item("a", 1, core.RecallHot), item("b", 1, core.RecallHot), item("c", 0.5, core.RecallHot)}
	got := d.Apply(ctx, core.Identity{UID: testUID, UD: "d-1"}, items)

	if !equal(ids(got), []string{"a", "b", "c"}) {
		t.Fatalf("order changed: %v", ids(got))
	}
	// uid 曝光集合为空，回退到 ud 集合
	if math.Abs(got[0].Score-math.Exp(-1)) > 1e-12 {
		t.Errorf("a = %v", got[0].Score)
	}
	if math.Abs(got[1].Score-math.Exp(-1)) > 1e-12 {
		t.Errorf("b = %v", got[1].Score)
	}
	if got[2].Score != 0.5 {
		t.Errorf("c = %v", got[2].Score)
	}
}

func TestDiscount_ColdUser(t *testing.T) {
	d := NewDiscount(store.NewMemoryStore())
	items := []*core.Item{item("a", 1, core.RecallHot)}
	if got := d.Apply(context.Background(), core.ColdIdentity(), items); got[0].Score != 1 {
		t.Errorf("score = %v", got[0].Score)
	}
}

func TestAffinity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a := NewAffinity(s, randutil.New(1))

	if err := a.Save(ctx, testUID, map[core.RecallType]float64{core.RecallSubscribe: 0.9}); err != nil {
		t.Fatal(err)
	}
	got := a.Predict(ctx, core.Identity{UID: testUID})
	if len(got) != 1 || got[core.RecallSubscribe] != 0.9 {
		t.Errorf("saved = %v", got)
	}

	random := a.Predict(ctx, core.Identity{UD: "d"})
	if len(random) != len(core.RecallTypes) {
		t.Fatalf("random len = %d", len(random))
	}
	for rt, p := range random {
		if p < 0 || p >= 1 {
			t.Errorf("%s = %v", rt, p)
		}
	}
}

func TestMergeDuplicates(t *testing.T) {
	affinity := map[core.RecallType]float64{core.RecallSubscribe: 0.9, core.RecallHot: 0.2}
	tests := []struct {
		name     string
		items    []*core.Item
		wantIDs  []string
		wantType map[string]core.RecallType
	}{
		{
			name:     "higher affinity wins and keeps first position",
			items:    []*core.Item{item("a", 1, core.RecallHot), item("b", 1, core.RecallHot), item("a", 0.1, core.RecallSubscribe)},
			wantIDs:  []string{"a", "b"},
			wantType: map[string]core.RecallType{"a": core.RecallSubscribe},
		},
		{
			name:     "tie keeps first seen",
			items:    []*core.Item{item("a", 1, core.RecallFollow), item("a", 2, core.RecallBehavior)},
			wantIDs:  []string{"a"},
			wantType: map[string]core.RecallType{"a": core.RecallFollow},
		},
		{
			name:     "missing affinity counts as default",
			items:    []*core.Item{item("a", 1, core.RecallFollow), item("a", 1, core.RecallHot)},
			wantIDs:  []string{"a"},
			wantType: map[string]core.RecallType{"a": core.RecallHot},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeDuplicates(tt.items, affinity)
			if !equal(ids(got), tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids(got), tt.wantIDs)
			}
			for _, it := range got {
				if want, ok := tt.wantType[it.ID]; ok && it.RecallType != want {
					t.Errorf("%s recall type = %s, want %s", it.ID, it.RecallType, want)
				}
			}
		})
	}
}

func TestMergeDuplicates_DifferentTypesKept(t *testing.T) {
	items := []*core.Item{
		{ID: "x", Type: core.ItemPub, RecallType: core.RecallHot},
		{ID: "x", Type: core.ItemPerson, RecallType: core.RecallHot},
	}
	if got := MergeDuplicates(items, nil); len(got) != 2 {
		t.Errorf("len = %d", len(got))
	}
}

func TestInterleave_SingleType(t *testing.T) {
	items := []*core.Item{item("a", 0.1, core.RecallHot), item("b", 0.9, core.RecallHot), item("c", 0.1, core.RecallHot)}
	got := Interleave(items, nil, constRand{})
	if !equal(ids(got), []string{"b", "a", "c"}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestInterleave_Deterministic(t *testing.T) {
	affinity := map[core.RecallType]float64{core.RecallSubscribe: 0.9, core.RecallHot: 0.1}
	items := []*core.Item{
		item("h1", 0.9, core.RecallHot),
		item("h2", 0.8, core.RecallHot),
		item("s1", 0.3, core.RecallSubscribe),
		item("s2", 0.2, core.RecallSubscribe),
	}
	// 接受概率：subscribe ≈ 1，hot = 0；hot 只能填空位
	got := Interleave(items, affinity, constRand{v: 0})
	if !equal(ids(got), []string{"s1", "h1", "s2", "h2"}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestInterleave_Properties(t *testing.T) {
	affinity := map[core.RecallType]float64{core.RecallSubscribe: 0.6, core.RecallHot: 0.3, core.RecallFollow: 0.5}
	var items []*core.Item
	for i, rt := range []core.RecallType{core.RecallSubscribe, core.RecallHot, core.RecallFollow, core.RecallSearch} {
		for j := 0; j < 5; j++ {
			items = append(items, &core.Item{
				ID: string(rune('a'+i)) + string(rune('0'+j)), Type: core.ItemPub,
				Score: float64(j) / 10, RecallType: rt,
			})
		}
	}
	for seed := int64(0); seed < 10; seed++ {
		got := Interleave(items, affinity, randutil.New(seed))
		if len(got) != len(items) {
			t.Fatalf("seed %d: len = %d", seed, len(got))
		}
		seen := map[string]bool{}
		last := map[core.RecallType]float64{}
		for _, it := range got {
			if it == nil {
				t.Fatalf("seed %d: hole in output", seed)
			}
			if seen[it.ID] {
				t.Fatalf("seed %d: duplicate %s", seed, it.ID)
			}
			seen[it.ID] = true
			if prev, ok := last[it.RecallType]; ok && it.Score > prev {
				t.Errorf("seed %d: %s not descending within type", seed, it.RecallType)
			}
			last[it.RecallType] = it.Score
		}
	}
}

func TestStageB_Apply(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	_ = kv.ZAdd(ctx, "uid_show1_"+testUID, 1, "a")
	s := &StageB{Discount: NewDiscount(kv), Affinity: NewAffinity(kv, randutil.New(1)), Rand: randutil.New(1)}

	got := s.Apply(ctx, core.Identity{UID: testUID}, []*core.Item{item("a", 1, core.RecallHot), item("b", 0.5, core.RecallHot)})
	if !equal(ids(got), []string{"b", "a"}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestTopNNode(t *testing.T) {
	items := []*core.Item{item("a", 3, core.RecallHot), item("b", 2, core.RecallHot), item("c", 1, core.RecallHot)}
	tests := []struct {
		name  string
		n     int
		count int
		want  int
	}{
		{"explicit n", 2, 100, 2},
		{"falls back to count", 0, 1, 1},
		{"no limit", 0, 0, 3},
		{"n larger than items", 10, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := &core.RecommendContext{Count: tt.count}
			got, err := (&TopNNode{N: tt.n}).Process(context.Background(), rctx, items)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSortNode_AfterDiscount(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	if _, err := kv.ZIncrBy(ctx, store.ShowHistoryKey(core.Identity{UID: testUID}), 50, "seen"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		nodes []pipeline.Node
		want  []string
	}{
		{"discount keeps order", []pipeline.Node{&DiscountNode{Discount: NewDiscount(kv)}}, []string{"seen", "fresh", "tail"}},
		{"sort after discount", []pipeline.Node{&DiscountNode{Discount: NewDiscount(kv)}, &SortNode{}}, []string{"fresh", "tail", "seen"}},
		{"sort is stable", []pipeline.Node{&SortNode{}}, []string{"seen", "fresh", "tail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []*core.Item{item("seen", 0.9, core.RecallHot), item("fresh", 0.8, core.RecallHot), item("tail", 0.8, core.RecallHot)}
			rctx := core.NewRecommendContext(core.Identity{UID: testUID}, "", 0)
			var err error
			for _, n := range tt.nodes {
				if items, err = n.Process(ctx, rctx, items); err != nil {
					t.Fatal(err)
				}
			}
			if got := ids(items); !equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

type fixedTop []*core.Item

func (f fixedTop) TopItems(context.Context) []*core.Item { return f }

func TestPrependTopNode(t *testing.T) {
	top := fixedTop{item("t", 1, core.RecallTop), item("a", 1, core.RecallTop)}
	node := &PrependTopNode{Top: top}
	items := []*core.Item{item("a", 0.5, core.RecallHot), item("b", 0.4, core.RecallHot)}

	rctx := core.NewRecommendContext(core.Identity{UD: "d"}, "", 10)
	got, _ := node.Process(context.Background(), rctx, items)
	if !equal(ids(got), []string{"a", "b"}) {
		t.Errorf("without flag = %v", ids(got))
	}

	rctx.Params[ParamPrependTop] = true
	got, _ = node.Process(context.Background(), rctx, items)
	if !equal(ids(got), []string{"t", "a", "b"}) {
		t.Fatalf("with flag = %v", ids(got))
	}
	if got[1].RecallType != core.RecallTop {
		t.Errorf("tie should keep the top copy, got %s", got[1].RecallType)
	}
}
