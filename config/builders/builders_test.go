package builders

import (
	"context"
	"testing"

	"github.com/louhangyu/zhipu/config"
	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pipeline"
	"github.com/louhangyu/zhipu/rank"
	"github.com/louhangyu/zhipu/recall"
	"github.com/louhangyu/zhipu/rerank"
	"github.com/louhangyu/zhipu/store"
)

type stubSource struct{ id string }

func (s stubSource) Name() string                { return "recall.stub" }
func (s stubSource) RecallType() core.RecallType { return core.RecallHot }
func (s stubSource) Recall(context.Context, *core.RecommendContext) (core.ItemsByType, error) {
	return core.ItemsByType{core.ItemPub: {{ID: s.id, Type: core.ItemPub, Score: 1, RecallType: core.RecallHot}}}, nil
}

func deps() *config.Deps {
	kv := store.NewMemoryStore()
	return &config.Deps{
		Discount: rerank.NewDiscount(kv),
		Affinity: rerank.NewAffinity(kv, nil),
		Resorter: rank.NewResorter(nil, &rank.HybridRank{}),
		Sources:  map[string]recall.Source{"a": stubSource{id: "a"}, "b": stubSource{id: "b"}},
	}
}

func TestSupportedTypes(t *testing.T) {
	want := []string{
		"filter", "rank.resort", "recall.fanout", "rerank.discount",
		"rerank.interleave", "rerank.merge", "rerank.prepend_top", "rerank.topn",
	}
	got := config.SupportedTypes()
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestDefaultPipelines(t *testing.T) {
	for _, cfg := range []*pipeline.Config{config.DefaultServePipeline(), config.DefaultTrainPipeline()} {
		if _, err := config.BuildPipeline(cfg, deps()); err != nil {
			t.Errorf("%s: %v", cfg.Pipeline.Name, err)
		}
	}
}

func TestServePipeline_Run(t *testing.T) {
	p, err := config.BuildPipeline(config.DefaultServePipeline(), deps())
	if err != nil {
		t.Fatal(err)
	}
	rctx := core.NewRecommendContext(core.Identity{UD: "d"}, "", 2)
	rctx.Params["exclude_ids"] = []string{"b"}
	items := []*core.Item{
		{ID: "a", Type: core.ItemPub, Score: 3},
		{ID: "b", Type: core.ItemPub, Score: 2},
		{ID: "c", Type: core.ItemPub, Score: 1},
	}
	got, err := p.Run(context.Background(), rctx, items)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got %+v", got)
	}
}

func TestBuildFanoutNode(t *testing.T) {
	cfg, err := pipeline.ParseYAML([]byte(`
pipeline:
  name: recall
  nodes:
    - type: recall.fanout
      config:
        sources: [a, b]
        timeout: 1
        max_concurrent: 1
`))
	if err != nil {
		t.Fatal(err)
	}
	p, err := config.BuildPipeline(cfg, deps())
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Run(context.Background(), core.NewRecommendContext(core.Identity{}, "", 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("got %+v", got)
	}

	cfg.Pipeline.Nodes[0].Config["sources"] = []any{"missing"}
	if _, err := config.BuildPipeline(cfg, deps()); err == nil {
		t.Error("want unknown source error")
	}
}

func TestBuildFilterNode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     map[string]any
		wantErr bool
	}{
		{"exclude and expr", map[string]any{"filters": []any{
			map[string]any{"type": "exclude", "item_ids": []any{"x"}},
			map[string]any{"type": "expr", "expr": "item.score <= 0"},
		}}, false},
		{"missing filters", map[string]any{}, true},
		{"unknown type", map[string]any{"filters": []any{map[string]any{"type": "blacklist"}}}, true},
		{"bad expr", map[string]any{"filters": []any{map[string]any{"type": "expr", "expr": "item.score >"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildFilterNode(tt.cfg, deps())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	cfg := pipeline.NewConfig("x", pipeline.NodeConfig{Type: "rank.lr"})
	if err := config.ValidatePipelineConfig(cfg); err == nil {
		t.Error("want unsupported type error")
	}
}
