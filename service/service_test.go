package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louhangyu/zhipu/core"
)

func TestSearchClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" || r.URL.Query().Get("q") != "graph neural network" || r.URL.Query().Get("k") != "2" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","score":0.9,"title":"GNN"},{"id":"p2","score":0.5},{"id":"p3","score":0.1}]}`))
	}))
	defer srv.Close()

	c := NewSearchClient(srv.URL, WithAuth(&AuthConfig{Type: "bearer", Token: "tok"}))
	hits, err := c.Search(context.Background(), "graph neural network", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "p1" || hits[0].Score != 0.9 || hits[0].Title != "GNN" {
		t.Errorf("Search() = %+v", hits)
	}

	if hits, err := c.Search(context.Background(), "", 5); err != nil || hits != nil {
		t.Errorf("empty query = %v, %v", hits, err)
	}
}

func TestSearchClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSearchClient(srv.URL).Search(context.Background(), "x", 3)
	if !core.IsUnavailable(err) {
		t.Errorf("Search() error = %v, want UNAVAILABLE", err)
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	_, err := NewSearchClient(srv.URL, WithTimeout(20*time.Millisecond)).Search(context.Background(), "x", 3)
	if de := core.GetDomainError(err); de == nil || de.Code != core.ErrorCodeTimeout {
		t.Errorf("Search() error = %v, want TIMEOUT", err)
	}
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewSearchClient(srv.URL)
	for i := 0; i < 15; i++ {
		_, _ = c.Search(context.Background(), "x", 1)
	}
	if got := atomic.LoadInt32(&calls); got != 10 {
		t.Errorf("upstream calls = %d, want 10 before the breaker opens", got)
	}
}

func TestVenueClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/venue/short":
			if r.URL.Query().Get("alias") != "Neural Information Processing Systems" {
				_, _ = w.Write([]byte(`{"data":""}`))
				return
			}
			_, _ = w.Write([]byte(`{"data":"NeurIPS"}`))
		case "/api/v2/venue/quartile/by/paper_id":
			switch r.URL.Query().Get("id") {
			case "p1":
				_, _ = w.Write([]byte(`{"success":true,"data":{"CCF":"A"}}`))
			case "p2":
				_, _ = w.Write([]byte(`{"success":false,"data":{"CCF":"A"}}`))
			default:
				time.Sleep(100 * time.Millisecond)
				_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
			}
		}
	}))
	defer srv.Close()

	c := NewVenueClient(srv.URL, 30*time.Millisecond)
	ctx := context.Background()

	short, err := c.ShortName(ctx, "Neural Information Processing Systems", "v1")
	if err != nil || short != "NeurIPS" {
		t.Errorf("ShortName() = %q, %v", short, err)
	}

	tests := []struct {
		name    string
		paperID string
		want    int
		wantErr bool
	}{
		{name: "found", paperID: "p1", want: 1},
		{name: "success false", paperID: "p2", want: 0},
		{name: "quartile timeout", paperID: "slow", want: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := c.Quartile(ctx, tt.paperID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Quartile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if q == nil || len(q) != tt.want {
				t.Errorf("Quartile() = %v", q)
			}
		})
	}
}

func TestEmbeddingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "text-embedding")
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("EmbedBatch() not ordered by index: %v", vecs)
	}

	if _, err := c.EmbedBatch(context.Background(), []string{"a", "  "}); !core.IsInvalidInput(err) {
		t.Errorf("blank input error = %v, want INVALID_INPUT", err)
	}
}

type memTranslationStore struct {
	data  map[string]string
	saves int
}

func (m *memTranslationStore) Lookup(ctx context.Context, text string) (string, bool, error) {
	v, ok := m.data[text]
	return v, ok, nil
}

func (m *memTranslationStore) Save(ctx context.Context, text, translated, translator string) error {
	m.data[text] = translated
	m.saves++
	return nil
}

func TestTranslateClient_AndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		if q.Get("signType") != "v3" || len(q.Get("sign")) != 64 || q.Get("appKey") != "app" {
			_, _ = w.Write([]byte(`{"errorCode":"202"}`))
			return
		}
		_, _ = w.Write([]byte(`{"errorCode":"0","translation":["deep learning"]}`))
	}))
	defer srv.Close()

	client := NewTranslateClient(srv.URL, "app", "secret")
	store := &memTranslationStore{data: map[string]string{}}
	tr := NewCachedTranslator(client, store, "youdao")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := tr.Translate(ctx, "深度学习", LangEnglish)
		if err != nil || got != "deep learning" {
			t.Fatalf("Translate() = %q, %v", got, err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 || store.saves != 1 {
		t.Errorf("calls = %d, saves = %d; want 1, 1", calls, store.saves)
	}

	got, _ := tr.Translate(ctx, "graph", LangEnglish)
	if got != "graph" || atomic.LoadInt32(&calls) != 1 {
		t.Errorf("english passthrough = %q, calls = %d", got, calls)
	}
}

func TestSignInput(t *testing.T) {
	if got := signInput("short"); got != "short" {
		t.Errorf("signInput(short) = %q", got)
	}
	long := strings.Repeat("a", 10) + strings.Repeat("b", 5) + strings.Repeat("c", 10)
	if got := signInput(long); got != strings.Repeat("a", 10)+"25"+strings.Repeat("c", 10) {
		t.Errorf("signInput(long) = %q", got)
	}
}

func TestFactory(t *testing.T) {
	if _, err := NewSearchService(&ServiceConfig{Type: ServiceTypeSearch}); err == nil {
		t.Error("expected endpoint error")
	}
	if _, err := NewEmbeddingService(&ServiceConfig{Type: ServiceTypeEmbedding, Endpoint: "http://x"}); err == nil {
		t.Error("expected model error")
	}
	if _, err := NewVenueService(&ServiceConfig{Type: ServiceTypeVenue, Endpoint: "http://x"}, 0); err != nil {
		t.Errorf("NewVenueService() error = %v", err)
	}
}
