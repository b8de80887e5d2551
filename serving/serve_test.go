package serving

import (
	"context"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/config"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/orchestrator"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/store"

	_ "github.com/louhangyu/zhipu/config/builders"
)

func TestFacade_DefaultServePipeline_DiscountOrder(t *testing.T) {
	tests := []struct {
		name  string
		shows float64
		num   int
		want  []string
	}{
		{"never shown", 0, 1, []string{"seen"}},
		{"shown item sinks", 50, 1, []string{"fresh"}},
		{"shown item moves to tail", 50, 3, []string{"fresh", "other", "seen"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemoryStore()
			deps := &orchestrator.Deps{Cache: store.NewCache(kv)}
			native := &orchestrator.Strategy{Flag: orchestrator.FlagNative, Name: orchestrator.NameNative}
			id := core.Identity{UID: testUID}
			set := core.RecommendationSet{User: id.UserID(), UserType: id.Type(), Rec: []*core.Item{
				item("seen", 0.9, core.RecallSubscribe),
				item("fresh", 0.8, core.RecallHot),
				item("other", 0.7, core.RecallBehavior),
			}}
			if err := deps.Cache.SetEX(ctx, native.NonKeywordKey(id), set, time.Hour); err != nil {
				t.Fatal(err)
			}
			if tt.shows > 0 {
				if _, err := kv.ZIncrBy(ctx, store.ShowHistoryKey(id), tt.shows, "seen"); err != nil {
					t.Fatal(err)
				}
			}
			serve, err := config.BuildPipeline(config.DefaultServePipeline(), &config.Deps{Discount: rerank.NewDiscount(kv)})
			if err != nil {
				t.Fatal(err)
			}
			f := NewFacade(orchestrator.NewRegistry(native), deps, serve)

			got := f.Recommend(ctx, Request{UID: testUID, Num: tt.num})
			if !equal(ids(got.Data), tt.want) {
				t.Errorf("Recommend() = %v, want %v", ids(got.Data), tt.want)
			}
		})
	}
}

func TestFacade_ServeRule(t *testing.T) {
	titles := titleEnricher{"u1": "", "u2": "B", "u3": "C"}
	tests := []struct {
		name string
		rule string
		want []string
	}{
		{"default rule drops untitled pub", orchestrator.DefaultServeRule, []string{"u2", "u3"}},
		{"no rule", "", []string{"u1", "u2", "u3"}},
		{"invalid rule ignored", `item.type ==`, []string{"u1", "u2", "u3"}},
		{"custom rule", `item.recall_type == "hot"`, []string{"u1", "u3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			deps := &orchestrator.Deps{Cache: store.NewCache(store.NewMemoryStore())}
			native := &orchestrator.Strategy{Flag: orchestrator.FlagNative, Name: orchestrator.NameNative, ServeRule: tt.rule}
			id := core.Identity{UID: testUID}
			set := core.RecommendationSet{User: id.UserID(), UserType: id.Type(), Rec: []*core.Item{
				item("u1", 0.9, core.RecallSubscribe),
				item("u2", 0.8, core.RecallHot),
				item("u3", 0.7, core.RecallBehavior),
			}}
			if err := deps.Cache.SetEX(ctx, native.NonKeywordKey(id), set, time.Hour); err != nil {
				t.Fatal(err)
			}
			f := NewFacade(orchestrator.NewRegistry(native), deps, nil, WithEnricher(titles))

			got := f.Recommend(ctx, Request{UID: testUID, Num: 5})
			if !equal(ids(got.Data), tt.want) {
				t.Errorf("Recommend() = %v, want %v", ids(got.Data), tt.want)
			}
		})
	}
}
