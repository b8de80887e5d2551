package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/louhangyu/zhipu/core"
)

type appendNode struct{ id string }

func (n *appendNode) Name() string { return "test.append" }
func (n *appendNode) Kind() Kind   { return KindRecall }
func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return append(items, &core.Item{ID: n.id, Type: core.ItemPub}), nil
}

type failNode struct{}

func (failNode) Name() string { return "test.fail" }
func (failNode) Kind() Kind   { return KindFilter }
func (failNode) Process(context.Context, *core.RecommendContext, []*core.Item) ([]*core.Item, error) {
	return nil, errors.New("boom")
}

func TestPipeline_Run(t *testing.T) {
	rctx := core.NewRecommendContext(core.Identity{}, "", 10)
	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}, &appendNode{id: "b"}}}
	got, err := p.Run(context.Background(), rctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("got %+v", got)
	}

	p.Nodes = append(p.Nodes, failNode{})
	if _, err := p.Run(context.Background(), rctx, nil); err == nil {
		t.Error("want error")
	}
}

func TestConfig_BuildPipeline(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
pipeline:
  name: serve
  nodes:
    - type: test.append
      config:
        id: x
    - type: test.append
`))
	if err != nil {
		t.Fatal(err)
	}
	f := NewNodeFactory()
	f.Register("test.append", func(c map[string]any) (Node, error) {
		id, _ := c["id"].(string)
		return &appendNode{id: id}, nil
	})
	p, err := cfg.BuildPipeline(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pipeline.Name != "serve" || len(p.Nodes) != 2 {
		t.Fatalf("pipeline = %+v", p)
	}
	if p.Nodes[0].(*appendNode).id != "x" {
		t.Errorf("node config not passed")
	}

	bad := NewConfig("bad", NodeConfig{Type: "unknown"})
	if _, err := bad.BuildPipeline(f); err == nil {
		t.Error("want unknown node error")
	}
}
