package rank

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/model"
	"github.com/louhangyu/zhipu/store"
)

const testUID = "5f0a1b2c3d4e5f6a7b8c9d0e"

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)

type fakeRecords map[string]aggregate.Record

func (f fakeRecords) Materialize(_ context.Context, id string, _ core.ItemType, _ bool) (aggregate.Record, error) {
	return f[id], nil
}

type fixedSimilarity map[string]float64

func (f fixedSimilarity) Similarities(_ context.Context, _ core.Identity, texts []string) []float64 {
	out := make([]float64, len(texts))
	for i, t := range texts {
		out[i] = f[t]
	}
	return out
}

type fixedPrior []float64

func (p fixedPrior) Prior(context.Context, string, []Feature, []float64) []float64 { return p }

func pub(title string, citation float64, sciq map[string]any) aggregate.Record {
	return aggregate.Record{"type": "pub", "title": title, "num_citation": citation, "sciq": sciq}
}

func TestPropertyScores(t *testing.T) {
	h := &HybridRank{Now: func() time.Time { return testNow }}
	features := []Feature{
		{Key: core.ItemKey{ID: "a", Type: core.ItemPub}, Citation: 100, District: districtCCFA},
		{Key: core.ItemKey{ID: "b", Type: core.ItemPub}},
		{Key: core.ItemKey{ID: "c", Type: core.ItemPub}, Citation: 100, District: districtCCFA, TS: testNow.Add(-time.Hour)},
	}
	got := h.PropertyScores(context.Background(), features)
	want := []float64{0.6, 0, 0.6 * math.Exp(-1)}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHybridRank_Rank(t *testing.T) {
	features := []Feature{
		{Key: core.ItemKey{ID: "a", Type: core.ItemPub}, Text: "a", Citation: 10},
		{Key: core.ItemKey{ID: "b", Type: core.ItemPub}, Text: "b"},
		{Key: core.ItemKey{ID: "c", Type: core.ItemPub}, Text: "c"},
	}
	ctx := context.Background()

	t.Run("cold keeps input order", func(t *testing.T) {
		h := &HybridRank{Now: func() time.Time { return testNow }}
		got := h.Rank(ctx, core.ColdIdentity(), features)
		if len(got) != 3 || got[0].Key.ID != "a" || got[1].Key.ID != "b" {
			t.Fatalf("got %+v", got)
		}
		if got[0].Score <= got[1].Score {
			t.Errorf("scores = %+v", got)
		}
	})

	t.Run("interest dominates", func(t *testing.T) {
		h := &HybridRank{Interest: fixedSimilarity{"c": 1}, Now: func() time.Time { return testNow }}
		got := h.Rank(ctx, core.Identity{UID: testUID}, features)
		if got[0].Key.ID != "c" {
			t.Fatalf("got %+v", got)
		}
		for _, s := range got {
			if s.Score < 0 || s.Score > 1 {
				t.Errorf("score out of [0,1]: %+v", s)
			}
		}
	})

	t.Run("prior overrides and drops", func(t *testing.T) {
		h := &HybridRank{
			Interest: fixedSimilarity{},
			Prior:    fixedPrior{0.9, 0, NoPrior},
			Now:      func() time.Time { return testNow },
		}
		got := h.Rank(ctx, core.Identity{UID: testUID}, features)
		if len(got) != 2 || got[0].Key.ID != "a" || got[1].Key.ID != "c" {
			t.Fatalf("got %+v", got)
		}
	})
}

func TestResorter_Resort(t *testing.T) {
	records := fakeRecords{
		"a": pub("A", 100, map[string]any{"CCF": "A"}),
		"b": pub("B", 0, nil),
		"e": pub("E", 0, nil),
	}
	r := NewResorter(records, &HybridRank{Now: func() time.Time { return testNow }})
	items := []*core.Item{
		{ID: "b", Type: core.ItemPub, Score: 0.5, RecallType: core.RecallSubscribe},
		{ID: "missing", Type: core.ItemPub, Score: 1, RecallType: core.RecallSubscribe},
		{ID: "a", Type: core.ItemPub, Score: 0.5, RecallType: core.RecallSubscribe},
		{ID: "e", Type: core.ItemPub, Score: 0.2, RecallType: core.RecallEditorHot},
		{ID: "x", Type: core.ItemAI2K, Score: 1, RecallType: core.RecallAI2K},
	}
	got := r.Resort(context.Background(), items, core.ColdIdentity())
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("first = %s, want a", got[0].ID)
	}
	for _, it := range got {
		if it.ID == "e" && it.Score != 0.2 {
			t.Errorf("editor hot score changed: %v", it.Score)
		}
	}
}

func TestResorter_NoFeaturesKeepsItems(t *testing.T) {
	r := NewResorter(fakeRecords{}, &HybridRank{})
	items := []*core.Item{{ID: "a", Type: core.ItemPub, Score: 1}}
	if got := r.Resort(context.Background(), items, core.ColdIdentity()); len(got) != 1 || got[0].Score != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestBuildFeatures(t *testing.T) {
	records := fakeRecords{
		"p": {
			"type":      "person",
			"name":      "Alice",
			"indices":   map[string]any{"pubs": 30.0, "citations": 500.0, "hindex": 12.0},
			"interests": []any{map[string]any{"t": "graph"}, map[string]any{"t": "nlp"}},
			"ts":        "2026-03-10 11:00:00",
		},
		"t":     {"type": "pub_topic", "title": "", "title_zh": "图学习", "content": "def"},
		"empty": {"type": "pub"},
	}
	items := []*core.Item{
		{ID: "p", Type: core.ItemPerson},
		{ID: "t", Type: core.ItemPubTopic},
		{ID: "empty", Type: core.ItemPub},
		{ID: "p", Type: core.ItemPerson},
	}
	ordered, byKey := BuildFeatures(context.Background(), records, items)
	if len(ordered) != 2 || len(byKey) != 2 {
		t.Fatalf("features = %+v", ordered)
	}
	person := ordered[0]
	if person.Citation != 500 || person.Views != 30 || person.Text != "Alice\ngraph nlp" || person.TS.IsZero() {
		t.Errorf("person = %+v", person)
	}
	if ordered[1].Text != "图学习\ndef" {
		t.Errorf("topic text = %q", ordered[1].Text)
	}
}

func TestNewQuality(t *testing.T) {
	q := NewQuality(core.ItemPub, core.ItemStat{ItemID: "a", UIDs: 9, Clicks: 100, Shows: 1000})
	want := 0.8*100.0/2000.0 + 0.1*math.Log(1)
	if math.Abs(q.Quality-want) > 1e-12 || q.CTR != 0.1 {
		t.Errorf("quality = %+v, want %v", q, want)
	}
	if zero := NewQuality(core.ItemPub, core.ItemStat{ItemID: "b"}); zero.CTR != 0 || zero.AdjustCTR != 0 {
		t.Errorf("no shows = %+v", zero)
	}
}

func TestQualityStore(t *testing.T) {
	ctx := context.Background()
	s := NewQualityStore(store.NewCache(store.NewMemoryStore()))
	if err := s.Save(ctx, Quality{Type: core.ItemPub, Item: "a", Quality: 0.4}); err != nil {
		t.Fatal(err)
	}
	got := s.Qualities(ctx, []core.ItemKey{{ID: "a", Type: core.ItemPub}, {ID: "b", Type: core.ItemPub}})
	if got[core.ItemKey{ID: "a", Type: core.ItemPub}] != 0.4 || len(got) != 1 {
		t.Errorf("got %v", got)
	}
}

func TestInterest_Anonymous(t *testing.T) {
	in := NewInterest(nil, nil)
	got := in.Similarities(context.Background(), core.Identity{UD: "d"}, []string{"a", "b"})
	for _, s := range got {
		if s != MinSimilarity {
			t.Errorf("got %v", got)
		}
	}
}

func TestModelPrior(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	if _, err := kv.ZIncrBy(ctx, store.ShowHistoryKey(core.Identity{UID: testUID}), 2, "seen"); err != nil {
		t.Fatal(err)
	}
	lr := &model.LRModel{Weights: map[string]float64{"shows": 1}}
	features := []Feature{
		{Key: core.ItemKey{ID: "seen", Type: core.ItemPub}},
		{Key: core.ItemKey{ID: "fresh", Type: core.ItemPub}},
	}
	interest := []float64{0.5, 0.5}

	tests := []struct {
		name  string
		prior *ModelPrior
		uid   string
		want  []float64
	}{
		{"shown item only", &ModelPrior{Model: lr, History: kv}, testUID, []float64{1 / (1 + math.Exp(-2)), NoPrior}},
		{"no history store", &ModelPrior{Model: lr}, testUID, []float64{NoPrior, NoPrior}},
		{"user without history", &ModelPrior{Model: lr, History: kv}, "5f0a1b2c3d4e5f6a7b8c9d0f", []float64{NoPrior, NoPrior}},
		{"no model", &ModelPrior{History: kv}, testUID, []float64{NoPrior, NoPrior}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.prior.Prior(ctx, tt.uid, features, interest)
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
