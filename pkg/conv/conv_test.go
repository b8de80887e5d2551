package conv

import (
	"encoding/json"
	"testing"
	"time"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOK bool
	}{
		{name: "float64", in: 1.5, want: 1.5, wantOK: true},
		{name: "int", in: 3, want: 3, wantOK: true},
		{name: "int64", in: int64(7), want: 7, wantOK: true},
		{name: "json number", in: json.Number("2.25"), want: 2.25, wantOK: true},
		{name: "numeric string", in: "10", want: 10, wantOK: true},
		{name: "bool", in: true, want: 1, wantOK: true},
		{name: "nil", in: nil, wantOK: false},
		{name: "text", in: "abc", wantOK: false},
		{name: "slice", in: []int{1}, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.in)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ToFloat64(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestDocumentAccessors(t *testing.T) {
	doc := map[string]any{
		"title":        "Attention Is All You Need",
		"n_citation":   float64(120),
		"year":         int64(2017),
		"is_top":       true,
		"venue":        map[string]any{"raw": "NeurIPS"},
		"keywords":     []any{"transformer", "attention"},
		"authors":      []any{map[string]any{"name": "A"}, "skip", map[string]any{"name": "B"}},
		"ts":           "2024-01-02 03:04:05",
		"unix_ts":      float64(1700000000),
		"missing_type": []int{1},
	}

	if got := String(doc, "title"); got != "Attention Is All You Need" {
		t.Errorf("String() = %q", got)
	}
	if got := Float(doc, "n_citation"); got != 120 {
		t.Errorf("Float() = %v", got)
	}
	if got := Int(doc, "year"); got != 2017 {
		t.Errorf("Int() = %v", got)
	}
	if !Bool(doc, "is_top") || Bool(doc, "nope") {
		t.Error("Bool() mismatch")
	}
	if got := String(Map(doc, "venue"), "raw"); got != "NeurIPS" {
		t.Errorf("Map() raw = %q", got)
	}
	if got := Strings(doc, "keywords"); len(got) != 2 || got[1] != "attention" {
		t.Errorf("Strings() = %v", got)
	}
	if got := Maps(doc["authors"]); len(got) != 2 || String(got[1], "name") != "B" {
		t.Errorf("Maps() = %v", got)
	}
	if ts, ok := Time(doc, "ts"); !ok || ts.Year() != 2024 || ts.Second() != 5 {
		t.Errorf("Time(ts) = %v, %v", ts, ok)
	}
	if ts, ok := Time(doc, "unix_ts"); !ok || !ts.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Time(unix_ts) = %v, %v", ts, ok)
	}
	if _, ok := Time(doc, "absent"); ok {
		t.Error("Time(absent) should be false")
	}
	if got := Strings(doc, "missing_type"); got != nil {
		t.Errorf("Strings(bad type) = %v", got)
	}
}

func TestConfigGet(t *testing.T) {
	cfg := map[string]any{"name": "hot", "limit": 100, "ratio": 1, "bad": "x"}
	if got := ConfigGet(cfg, "name", ""); got != "hot" {
		t.Errorf("ConfigGet(name) = %q", got)
	}
	if got := ConfigGetInt64(cfg, "limit", 5); got != 100 {
		t.Errorf("ConfigGetInt64(limit) = %d", got)
	}
	if got := ConfigGetInt64(cfg, "bad", 5); got != 5 {
		t.Errorf("ConfigGetInt64(bad) = %d", got)
	}
	if got := ConfigGetFloat64(cfg, "ratio", 0.5); got != 1 {
		t.Errorf("ConfigGetFloat64(ratio) = %v", got)
	}
	if got := ConfigGetFloat64(nil, "ratio", 0.5); got != 0.5 {
		t.Errorf("ConfigGetFloat64(nil) = %v", got)
	}
}
