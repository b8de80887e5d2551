package aggregate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/store"
)

const (
	pubID     = "5eafe7e091e01198d39865d6"
	pubID2    = "5eafe7e091e01198d39865d7"
	missingID = "5eafe7e091e01198d39865ff"
	authorA   = "53f42f36dabfaedce54dcd0c"
	authorB   = "53f42f36dabfaedce54dcd0d"
	topicID   = "60d2f1c5e3b2a1b0c9d8e7f6"
	ai2kID    = "61a1b2c3d4e5f60718293a4b"
	venueID   = "5ea1b2c3d4e5f60718293a4b"
	hhbID     = "5ea1b2c3d4e5f60718293a4c"
)

type memRecords struct {
	mu    sync.Mutex
	docs  map[string]map[string]core.Document
	finds int
}

func newMemRecords() *memRecords {
	return &memRecords{docs: make(map[string]map[string]core.Document)}
}

func (s *memRecords) put(collection, id string, doc core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]core.Document)
	}
	doc["id"] = id
	s.docs[collection][id] = doc
}

func (s *memRecords) FindByID(_ context.Context, collection, id string) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return doc, nil
}

func (s *memRecords) FindByIDs(_ context.Context, collection string, ids []string) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Document
	for _, id := range ids {
		if doc, ok := s.docs[collection][id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *memRecords) FindAll(_ context.Context, collection string, _ int) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Document
	for _, doc := range s.docs[collection] {
		out = append(out, doc)
	}
	return out, nil
}

func (s *memRecords) findCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

type stubVenue struct {
	short    string
	quartile map[string]any
	err      error
}

func (v stubVenue) ShortName(context.Context, string, string) (string, error) {
	return v.short, v.err
}

func (v stubVenue) Quartile(context.Context, string) (map[string]any, error) {
	return v.quartile, v.err
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []core.Job
}

func (q *captureQueue) Enqueue(_ context.Context, job core.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type stubActivities struct {
	core.ActionLog
	acts []core.Activity
}

func (s stubActivities) PersonActivities(context.Context, []string, time.Time, int) ([]core.Activity, error) {
	return s.acts, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

func newTestMaterializer(t *testing.T, records *memRecords, opts ...Option) (*Materializer, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	t.Cleanup(func() { _ = mem.Close() })
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithViewCounter(NewStoreViewCounter(mem))}, opts...)
	return NewMaterializer(records, store.NewCache(mem), opts...), mem
}

func seedPub(records *memRecords) {
	records.put(core.CollectionPub, pubID, core.Document{
		"title":        "Attention  Is\nAll You Need",
		"abstract":     "transformer",
		"year":         2024,
		"n_citation":   250,
		"ts":           testNow.Add(-30 * 24 * time.Hour).Format(core.DateTimeLayout),
		"venue":        map[string]any{"raw": "Neural Information Processing Systems", "_id": venueID},
		"venue_hhb_id": hhbID,
		"versions":     []any{map[string]any{"l": "ieee", "i": 3, "vname": "NeurIPS"}},
		"authors":      []any{map[string]any{"_id": authorA, "name": "A"}, map[string]any{"name": "no id"}},
		"category":     []any{"计算机-人工智能", "数学"},
	})
	records.put(core.CollectionPerson, authorA, core.Document{
		"name": "Ashish", "avatar": "a.png", "h_index": 60,
		"contact": map[string]any{"affiliation": "Google"},
	})
	records.put(core.CollectionVenue, venueID, core.Document{"h_index": 70})
	records.put(core.CollectionVenueHHB, hhbID, core.Document{"short_name": "NIPS"})
}

func TestMaterialize_MissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMaterializer(t, newMemRecords())

	tests := []struct {
		name string
		id   string
		typ  core.ItemType
	}{
		{name: "missing pub", id: missingID, typ: core.ItemPub},
		{name: "invalid id", id: "not-an-id", typ: core.ItemPub},
		{name: "missing person", id: missingID, typ: core.ItemPerson},
		{name: "missing report", id: missingID, typ: core.ItemReport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				rec, err := m.Materialize(ctx, tt.id, tt.typ, true)
				if err != nil {
					t.Fatalf("Materialize() #%d error = %v", i, err)
				}
				if !rec.IsEmpty() {
					t.Fatalf("Materialize() #%d = %v, want empty", i, rec)
				}
			}
		})
	}

	if _, err := m.Materialize(ctx, pubID, "video", true); !core.IsInvalidInput(err) {
		t.Errorf("Materialize(unknown type) error = %v, want INVALID_INPUT", err)
	}
}

func TestMaterialize_Pub(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	seedPub(records)
	m, mem := newTestMaterializer(t, records, WithVenueService(stubVenue{
		short:    "unused",
		quartile: map[string]any{core.CCFSource: core.CCFQuartile},
	}))
	_ = mem.ZAdd(ctx, PubViewsKey, 400, pubID)

	rec, err := m.Materialize(ctx, pubID, core.ItemPub, true)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if rec.Title() != "Attention Is All You Need" {
		t.Errorf("Title() = %q", rec.Title())
	}
	if rec.NumViewed() != 400 {
		t.Errorf("NumViewed() = %v, want 400", rec.NumViewed())
	}

	wantLabels := []string{LabelNew, LabelHighCitation, LabelTopConference, LabelTopAuthor, LabelHotPaper}
	wantZh := []string{"新论文", "高引论文", "顶刊", "大牛作者", "热门论文"}
	if got := rec.Labels(); !equalStrings(got, wantLabels) {
		t.Errorf("Labels() = %v, want %v", got, wantLabels)
	}
	if got := rec.LabelsZh(); !equalStrings(got, wantZh) {
		t.Errorf("LabelsZh() = %v, want %v", got, wantZh)
	}

	authors := rec.Authors()
	if len(authors) != 2 || authors[0]["avatar"] != "a.png" || authors[0]["org"] != "Google" {
		t.Errorf("Authors() = %v", authors)
	}
	venue := rec["venue"].(map[string]any)["info"].(venueNames)
	if venue.Name != "Neural Information Processing Systems" || venue.Short != "NIPS" {
		t.Errorf("venue = %+v", venue)
	}
	if got := rec["category"].([]string); !equalStrings(got, []string{"人工智能", "数学"}) {
		t.Errorf("category = %v", got)
	}
	if v := rec.Versions(); len(v) != 1 || v[0]["i"] != nil {
		t.Errorf("Versions() = %v, want field i removed", v)
	}

	if raw, err := mem.Get(ctx, PubViewsKey+":"+pubID); err != nil || string(raw) != "400" {
		t.Errorf("views cache = %q, %v", raw, err)
	}

	// 第二次读取命中缓存，不再访问记录库
	before := records.findCount()
	cached, err := m.Materialize(ctx, pubID, core.ItemPub, true)
	if err != nil {
		t.Fatalf("Materialize() cached error = %v", err)
	}
	if records.findCount() != before {
		t.Errorf("cached Materialize() touched the record store")
	}
	if cached.Title() != rec.Title() || !equalStrings(cached.Labels(), wantLabels) {
		t.Errorf("cached record = %v", cached)
	}
}

func TestMaterialize_PubUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	records.put(core.CollectionPub, pubID, core.Document{
		"title":    "Paper",
		"year":     2024,
		"ts":       testNow.Add(-24 * time.Hour).Format(core.DateTimeLayout),
		"versions": []any{map[string]any{"vname": "Some Venue"}},
	})
	m, _ := newTestMaterializer(t, records, WithVenueService(stubVenue{
		err: core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable, "down"),
	}))

	rec, err := m.Materialize(ctx, pubID, core.ItemPub, false)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if len(rec.SCIQ()) != 0 {
		t.Errorf("SCIQ() = %v, want empty", rec.SCIQ())
	}
	if venue := rec["venue"].(map[string]any)["info"].(venueNames); venue != (venueNames{}) {
		t.Errorf("venue = %+v, want empty", venue)
	}
	if len(rec.Labels()) != 0 {
		t.Errorf("Labels() = %v, want none", rec.Labels())
	}
}

func TestMaterialize_PubTopic(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	records.put(core.CollectionPub, pubID, core.Document{
		"title":   "P1",
		"authors": []any{map[string]any{"_id": authorA}, map[string]any{"_id": authorB}},
	})
	records.put(core.CollectionPub, pubID2, core.Document{
		"title":   "P2",
		"authors": []any{map[string]any{"_id": authorB}},
	})
	records.put(core.CollectionPerson, authorB, core.Document{"name": "B"})
	records.put(core.CollectionChannel, "c1", core.Document{"name": "NLP", "name_zh": "自然语言处理"})
	records.put(core.CollectionPubTopic, topicID, core.Document{
		"name":               "Transformers",
		"def":                "attention based models",
		"must_reading_count": 2,
		"channel":            []any{"c1"},
		"must_reading":       []any{map[string]any{"pid": pubID}, map[string]any{"pid": pubID2}, map[string]any{"x": 1}},
	})
	m, _ := newTestMaterializer(t, records)

	rec, err := m.Materialize(ctx, topicID, core.ItemPubTopic, true)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if rec.Title() != "Transformers" || !equalStrings(rec.Labels(), []string{"NLP"}) {
		t.Errorf("record = %v", rec)
	}
	authors := rec.Authors()
	if len(authors) != 2 || authors[0]["id"] != authorB || authors[0]["count"] != 2 {
		t.Errorf("Authors() = %v, want %s first with count 2", authors, authorB)
	}
	if first := rec["must_reading_paper"].(Record); first.Title() != "P1" {
		t.Errorf("must_reading_paper = %v", first)
	}
	if papers := rec["must_reading_papers"].([]Record); len(papers) != 2 {
		t.Errorf("must_reading_papers = %d, want 2", len(papers))
	}
}

func TestMaterialize_AI2K(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	records.put(core.CollectionAI2K, ai2kID, core.Document{"person_ids": []any{authorA, authorB}})
	records.put(core.CollectionPerson, authorA, core.Document{"name": "A", "name_zh": "甲"})
	records.put(core.CollectionPub, pubID, core.Document{"title": "P1", "year": 2024, "versions": []any{map[string]any{"l": "arxiv"}}})
	acts := stubActivities{acts: []core.Activity{
		{PersonID: authorA, PubID: pubID, EventTime: testNow.Add(-time.Hour)},
		{PersonID: authorB, PubID: pubID, EventTime: testNow.Add(-2 * time.Hour)},
		{PersonID: authorA, PubID: missingID, EventTime: testNow.Add(-3 * time.Hour)},
	}}
	m, _ := newTestMaterializer(t, records, WithActionLog(acts))

	rec, err := m.Materialize(ctx, ai2kID, core.ItemAI2K, true)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	persons := asMaps(rec["persons"])
	if len(persons) != 1 || persons[0]["person_id"] != authorA {
		t.Errorf("persons = %v", persons)
	}
	activities := asMaps(rec["activities"])
	if len(activities) != 1 {
		t.Fatalf("activities = %v, want 1", activities)
	}
	if activities[0]["person_name_zh"] != "甲" || activities[0]["title"] != "P1" {
		t.Errorf("activity = %v", activities[0])
	}
	if venue := activities[0]["venue"].(map[string]any)["info"].(venueNames); venue.Short != "Arxiv" {
		t.Errorf("activity venue = %+v", venue)
	}
}

func TestMaterialize_PersonAndReport(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	records.put(core.CollectionPerson, authorA, core.Document{
		"name": "A", "h_index": 42, "n_pubs": 100, "n_citation": 5000,
		"interests": []any{map[string]any{"t": "nlp", "w": 3}},
	})
	records.put(core.CollectionReport, missingID, core.Document{
		"title": "R", "image": "r.png", "like": 3,
		"created_time": "2024-05-20 10:00:00",
	})
	m, mem := newTestMaterializer(t, records)
	_ = mem.ZAdd(ctx, PersonViewsKey, 2, authorA)

	person, err := m.Materialize(ctx, authorA, core.ItemPerson, true)
	if err != nil {
		t.Fatalf("Materialize(person) error = %v", err)
	}
	if h, pubs, cites := person.Indices(); h != 42 || pubs != 100 || cites != 5000 {
		t.Errorf("Indices() = %v %v %v", h, pubs, cites)
	}
	if person.NumViewed() != 2 {
		t.Errorf("NumViewed() = %v, want 2", person.NumViewed())
	}
	if _, err := mem.Get(ctx, PersonViewsKey+":"+authorA); !core.IsStoreNotFound(err) {
		t.Errorf("views <= 3 should not be cached, err = %v", err)
	}

	report, err := m.Materialize(ctx, missingID, core.ItemReport, true)
	if err != nil {
		t.Fatalf("Materialize(report) error = %v", err)
	}
	if report["created_time"] != "2024-05-20" || report.Title() != "R" {
		t.Errorf("report = %v", report)
	}
	var ttlCheck Record
	if err := m.cache.Get(ctx, CacheKey(core.ItemReport, missingID), &ttlCheck); err != nil {
		t.Errorf("report not cached: %v", err)
	}
}

func TestCachedItems(t *testing.T) {
	ctx := context.Background()
	queue := &captureQueue{}
	m, _ := newTestMaterializer(t, newMemRecords(), WithJobQueue(queue))

	_ = m.cache.SetEX(ctx, CacheKey(core.ItemPub, pubID), Record{"id": pubID, "type": "pub", "title": "T", "year": 2024}, time.Hour)
	_ = m.cache.SetEX(ctx, CacheKey(core.ItemPub, pubID2), Record{"id": pubID2, "type": "pub", "title": ""}, time.Hour)
	_ = m.cache.SetEX(ctx, CacheKey(core.ItemPerson, authorA), Record{"id": authorA, "type": "person", "name": "A"}, time.Hour)

	items := []*core.Item{
		{ID: pubID, Type: core.ItemPub, Score: 0.9, RecallType: core.RecallSubscribe},
		{ID: pubID2, Type: core.ItemPub, Score: 0.8},
		{ID: topicID, Type: core.ItemPubTopic, Score: 0.7},
		{ID: authorA, Type: core.ItemPerson, Score: 0.6},
		{ID: pubID, Type: "video", Score: 0.5},
	}
	got := m.CachedItems(ctx, items)

	if len(got) != 4 {
		t.Fatalf("CachedItems() len = %d, want 4: %v", len(got), got)
	}
	if got[0].ID != pubID || got[0].Score != 0.9 || got[0].Extra["title"] != "T" || got[0].RecallType != core.RecallSubscribe {
		t.Errorf("hit = %+v", got[0])
	}
	if title, ok := got[1].Extra["title"]; got[1].ID != pubID2 || !ok || title != "" {
		t.Errorf("untitled hit = %+v, want empty extra.title", got[1])
	}
	if got[2].ID != topicID || got[2].Score != 0 || got[2].Extra != nil {
		t.Errorf("miss = %+v, want zero score", got[2])
	}
	if got[3].ID != authorA || got[3].Extra["name"] != "A" {
		t.Errorf("person hit = %+v", got[3])
	}
	if items[0].Extra != nil {
		t.Errorf("input item mutated: %+v", items[0])
	}

	if len(queue.jobs) != 1 || queue.jobs[0].Name != core.JobPreloadLostItems {
		t.Fatalf("jobs = %+v", queue.jobs)
	}
	var payload LostItemsPayload
	if err := json.Unmarshal(queue.jobs[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0] != (core.ItemKey{ID: topicID, Type: core.ItemPubTopic}) {
		t.Errorf("payload = %+v", payload)
	}
}

func TestPreloadItems(t *testing.T) {
	ctx := context.Background()
	records := newMemRecords()
	seedPub(records)
	m, _ := newTestMaterializer(t, records)

	refs := []core.ItemKey{
		{ID: pubID, Type: core.ItemPub},
		{ID: "bad", Type: core.ItemPub},
		{ID: missingID, Type: core.ItemPubTopic},
		{ID: pubID, Type: "video"},
	}
	if err := m.PreloadItems(ctx, refs, false); err != nil {
		t.Fatalf("PreloadItems() error = %v", err)
	}
	var rec Record
	if err := m.cache.Get(ctx, CacheKey(core.ItemPub, pubID), &rec); err != nil || rec.Title() == "" {
		t.Errorf("preloaded pub = %v, %v", rec, err)
	}
	if err := m.cache.Get(ctx, CacheKey(core.ItemPubTopic, missingID), &rec); !core.IsStoreNotFound(err) {
		t.Errorf("missing topic cached, err = %v", err)
	}
}

func TestIncreaseViews(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cached  bool
		current int
		counter float64
		want    int
	}{
		{name: "not cached", cached: false, want: 0},
		{name: "counter behind", cached: true, current: 5, counter: 3, want: 6},
		{name: "counter ahead", cached: true, current: 5, counter: 10, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, mem := newTestMaterializer(t, newMemRecords())
			_ = mem.ZAdd(ctx, PubViewsKey, tt.counter, pubID)
			if tt.cached {
				_ = m.cache.SetEX(ctx, CacheKey(core.ItemPub, pubID), Record{"id": pubID, "type": "pub", "title": "T", "num_viewed": tt.current}, time.Hour)
			}
			got, err := m.IncreaseViews(ctx, pubID)
			if err != nil {
				t.Fatalf("IncreaseViews() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IncreaseViews() = %d, want %d", got, tt.want)
			}
			if !tt.cached {
				return
			}
			var rec Record
			_ = m.cache.Get(ctx, CacheKey(core.ItemPub, pubID), &rec)
			if int(rec.NumViewed()) != tt.want {
				t.Errorf("cached num_viewed = %v, want %d", rec.NumViewed(), tt.want)
			}
		})
	}
}

func TestStoreViewCounter(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	defer mem.Close()
	c := NewStoreViewCounter(mem)

	if n, err := c.Views(ctx, core.ItemPub, pubID); err != nil || n != 0 {
		t.Errorf("Views(missing) = %d, %v", n, err)
	}
	if n, err := c.Incr(ctx, core.ItemPub, pubID); err != nil || n != 1 {
		t.Errorf("Incr() = %d, %v", n, err)
	}
	if n, _ := c.Views(ctx, core.ItemPub, pubID); n != 1 {
		t.Errorf("Views() = %d, want 1", n)
	}
	if n, err := c.Views(ctx, core.ItemReport, pubID); err != nil || n != 0 {
		t.Errorf("Views(report) = %d, %v", n, err)
	}
}

func asMaps(v any) []map[string]any {
	switch raw := v.(type) {
	case []map[string]any:
		return raw
	default:
		return nil
	}
}

func equalStrings(a, b []string) bool {
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
