package recall

import (
	"context"
	"reflect"
	"testing"

	"github.com/louhangyu/zhipu/aggregate"
	"github.com/louhangyu/zhipu/core"
)

func TestPerWord(t *testing.T) {
	tests := []struct {
		count, n, want int
	}{
		{count: 100, n: 3, want: 33},
		{count: 2, n: 5, want: 1},
		{count: 10, n: 0, want: 10},
	}
	for _, tt := range tests {
		if got := perWord(tt.count, tt.n); got != tt.want {
			t.Errorf("perWord(%d, %d) = %d, want %d", tt.count, tt.n, got, tt.want)
		}
	}
}

func TestSubscribedKeywords(t *testing.T) {
	profiles := fakeProfiles{testUID: {UID: testUID, Keywords: []string{"graph", "nlp", "graph"}}}
	ctx := context.Background()

	tests := []struct {
		name string
		rctx *core.RecommendContext
		want []string
	}{
		{name: "request keyword wins", rctx: core.NewRecommendContext(core.Identity{UID: testUID}, " gnn ", 10), want: []string{"gnn"}},
		{name: "profile keywords deduped", rctx: core.NewRecommendContext(core.Identity{UID: testUID}, "", 10), want: []string{"graph", "nlp"}},
		{name: "invalid uid", rctx: core.NewRecommendContext(core.Identity{UID: "abc"}, "", 10), want: nil},
		{name: "ud has no profile", rctx: core.NewRecommendContext(core.Identity{UD: "d-1"}, "", 10), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := subscribedKeywords(ctx, profiles, tt.rctx)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordReason(t *testing.T) {
	tests := []struct {
		name    string
		rec     aggregate.Record
		related bool
		want    core.Reason
	}{
		{
			name: "new paper",
			rec:  aggregate.Record{"labels": []string{aggregate.LabelNew, aggregate.LabelHighCitation}},
			want: core.Reason{Zh: "「gnn」领域的最新论文", En: "New Paper in 「gnn」"},
		},
		{
			name:    "high citation related",
			rec:     aggregate.Record{"labels": []string{aggregate.LabelHighCitation}},
			related: true,
			want:    core.Reason{Zh: "「gnn」相关联领域的高引论文", En: "High Citation Paper in related 「gnn」"},
		},
		{
			name: "plain paper",
			rec:  aggregate.Record{},
			want: core.Reason{Zh: "「gnn」领域的论文", En: "Paper in 「gnn」"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keywordReason(tt.rec, "gnn", tt.related); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseNeighbours(t *testing.T) {
	n, err := ParseNeighbours([]byte("Deep Learning: [neural network, deep learning, neural network]\n知识图谱: [knowledge graph]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Of("  deep learning "); !reflect.DeepEqual(got, []string{"neural network"}) {
		t.Errorf("Of(deep learning) = %v", got)
	}
	if got := n.Of("知识图谱"); !reflect.DeepEqual(got, []string{"knowledge graph"}) {
		t.Errorf("Of(知识图谱) = %v", got)
	}
	if got := n.Of("unknown"); got != nil {
		t.Errorf("Of(unknown) = %v", got)
	}

	if _, err := ParseNeighbours([]byte("a: [b")); err == nil {
		t.Error("expected parse error")
	}
	empty, err := LoadNeighbours("")
	if err != nil || len(empty) != 0 {
		t.Errorf("LoadNeighbours(\"\") = %v, %v", empty, err)
	}
}
