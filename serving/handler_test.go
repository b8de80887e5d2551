package serving

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHandler_Recommend(t *testing.T) {
	router := NewHandler(newFixture(t).facade).Router()
	body := `[{"parameters": {"uid": "` + testUID + `", "num": 1, "exclude_ids": ["u1"]}}]`

	tests := []struct {
		name string
		req  *http.Request
		want []string
	}{
		{"post list", httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(body)), []string{"t1", "u2"}},
		{"post object", httptest.NewRequest(http.MethodPost, RecommendPath,
			strings.NewReader(`{"parameters": {"num": 1}}`)), []string{"t1", "c1"}},
		{"get body param", httptest.NewRequest(http.MethodGet, RecommendPath+"?body="+url.QueryEscape(body), nil), []string{"t1", "u2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing request id")
			}
			if got := ids(decodeResponse(t, rec).Data); !equal(got, tt.want) {
				t.Errorf("data = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler_BadRequest(t *testing.T) {
	router := NewHandler(newFixture(t).facade).Router()
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"malformed json", httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(`[{"parameters":`))},
		{"empty list", httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(`[]`))},
		{"missing parameters", httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(`[{}]`))},
		{"negative num", httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(`[{"parameters": {"num": -1}}]`))},
		{"empty get", httptest.NewRequest(http.MethodGet, RecommendPath, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Code != "INVALID_INPUT" {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_UDCookie(t *testing.T) {
	router := NewHandler(newFixture(t).facade).Router()
	req := httptest.NewRequest(http.MethodPost, RecommendPath, strings.NewReader(`[{"parameters": {"ud": "1"}}]`))
	req.AddCookie(&http.Cookie{Name: udCookie, Value: "2"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if resp.Meta.UD != "2" || resp.Meta.ABFlag != "b" {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestHandler_Misc(t *testing.T) {
	router := NewHandler(newFixture(t).facade).Router()
	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodOptions, RecommendPath, http.StatusNoContent},
		{http.MethodPut, RecommendPath, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}
