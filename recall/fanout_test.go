package recall

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/core"
)

type stubSource struct {
	name  string
	items core.ItemsByType
	err   error
	block bool
}

func (s *stubSource) Name() string                { return s.name }
func (s *stubSource) RecallType() core.RecallType { return core.RecallType(s.name) }

func (s *stubSource) Recall(ctx context.Context, _ *core.RecommendContext) (core.ItemsByType, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.items, s.err
}

func stubItems(typ core.ItemType, ids ...string) core.ItemsByType {
	out := core.ItemsByType{}
	for _, id := range ids {
		out.Add(typ, core.NewItem(id, typ, 1, core.RecallHot))
	}
	return out
}

func TestFanout_Recall(t *testing.T) {
	tests := []struct {
		name          string
		maxConcurrent int
	}{
		{name: "unbounded", maxConcurrent: 0},
		{name: "one at a time", maxConcurrent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Fanout{
				Sources: []Source{
					&stubSource{name: "first", items: stubItems(core.ItemPub, "a", "b")},
					&stubSource{name: "broken", err: errRemote},
					&stubSource{name: "slow", block: true},
					&stubSource{name: "second", items: stubItems(core.ItemPub, "c")},
					&stubSource{name: "person", items: stubItems(core.ItemPerson, "p")},
				},
				Timeout:       20 * time.Millisecond,
				MaxConcurrent: tt.maxConcurrent,
			}
			got, err := f.Recall(context.Background(), uidContext(10))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(ids(got[core.ItemPub]), []string{"a", "b", "c"}) {
				t.Errorf("pub ids = %v", ids(got[core.ItemPub]))
			}
			if !reflect.DeepEqual(ids(got[core.ItemPerson]), []string{"p"}) {
				t.Errorf("person ids = %v", ids(got[core.ItemPerson]))
			}
		})
	}
}

func TestFanout_Process(t *testing.T) {
	f := &Fanout{Sources: []Source{
		&stubSource{name: "person", items: stubItems(core.ItemPerson, "p")},
		&stubSource{name: "pub", items: stubItems(core.ItemPub, "a")},
	}}
	in := []*core.Item{core.NewItem("x", core.ItemPub, 1, core.RecallHot)}
	out, err := f.Process(context.Background(), uidContext(10), in)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids(out), []string{"x", "a", "p"}) {
		t.Errorf("ids = %v", ids(out))
	}
}

func TestFanout_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Fanout{Sources: []Source{&stubSource{name: "slow", block: true}}}
	if _, err := f.Recall(ctx, uidContext(10)); err == nil {
		t.Fatal("expected context error")
	}
}
