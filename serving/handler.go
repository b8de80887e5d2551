package serving

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/louhangyu/zhipu/core"
	"github.com/louhangyu/zhipu/pkg/logging"
	"github.com/louhangyu/zhipu/pkg/metrics"
)

// 请求格式
const (
	RecommendPath = "/api/v1/recommend"
	PingbackPath  = "/api/v1/pingback"
	udCookie      = "_Collect_UD"
	maxBodyBytes  = 1 << 20
)

// envelope 是请求体中的一项：[{"parameters": {...}}]
type envelope struct {
	Parameters *Request `json:"parameters"`
}

// errorBody 是 4xx 响应体。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler 是推荐接口的 HTTP 入口。
type Handler struct {
	facade   *Facade
	validate *validator.Validate
}

func NewHandler(f *Facade) *Handler {
	return &Handler{facade: f, validate: validator.New()}
}

// Router 返回全部路由：
//
//	GET|POST /api/v1/recommend   推荐（GET 时请求体放在 body 参数中）
//	POST     /api/v1/pingback    曝光 / 点击 / 订阅变更上报，异步处理
//	GET      /healthz
//	GET      /metrics
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get(RecommendPath, h.Recommend)
	r.Post(RecommendPath, h.Recommend)
	r.Options(RecommendPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post(PingbackPath, h.Pingback)
	return r
}

// Recommend 处理推荐请求，请求体格式错误或参数非法时返回 400。
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	req, err := h.parse(r)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("method", r.Method).Msg("bad recommend request")
		if core.IsInvalidInput(err) {
			respondError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, core.ErrorCodeInternalError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.facade.Recommend(r.Context(), *req))
}

// Pingback 处理行为上报，投递成功返回 202。
func (h *Handler) Pingback(w http.ResponseWriter, r *http.Request) {
	req, err := h.parsePingback(r)
	if err == nil {
		err = h.facade.Pingback(r.Context(), *req)
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("pingback rejected")
		switch {
		case core.IsInvalidInput(err):
			respondError(w, http.StatusBadRequest, core.ErrorCodeInvalidInput, err.Error())
		case core.IsUnavailable(err):
			respondError(w, http.StatusServiceUnavailable, core.ErrorCodeUnavailable, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, core.ErrorCodeInternalError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) parsePingback(r *http.Request) (*PingbackRequest, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: bad request", err)
	}
	var req PingbackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, core.WrapDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: bad request", err)
	}
	if c, err := r.Cookie(udCookie); err == nil && c.Value != "" {
		req.UD = c.Value
	}
	if err := h.validate.Struct(&req); err != nil {
		return nil, core.WrapDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: invalid parameters", err)
	}
	return &req, nil
}

func (h *Handler) parse(r *http.Request) (*Request, error) {
	req, err := h.read(r)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: bad request", err)
	}
	if c, err := r.Cookie(udCookie); err == nil && c.Value != "" {
		req.UD = c.Value
	}
	req.UserAgent = r.UserAgent()
	if err := h.validate.Struct(req); err != nil {
		return nil, core.WrapDomainError(core.ModuleServing, core.ErrorCodeInvalidInput, "serving: invalid parameters", err)
	}
	return req, nil
}

func (h *Handler) read(r *http.Request) (*Request, error) {
	var raw []byte
	switch r.Method {
	case http.MethodGet:
		raw = []byte(r.URL.Query().Get("body"))
	case http.MethodPost:
		b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, errors.New("unsupported method " + r.Method)
	}
	return decodeRequest(raw)
}

// decodeRequest 解析 [{"parameters": {...}}]，也接受单个对象。
func decodeRequest(raw []byte) (*Request, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil, errors.New("empty request body")
	}
	var env envelope
	if strings.HasPrefix(body, "[") {
		var list []envelope
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errors.New("empty request list")
		}
		env = list[0]
	} else if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, err
	}
	if env.Parameters == nil {
		return nil, errors.New("missing parameters")
	}
	return env.Parameters, nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(status), time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, errorBody{Code: code, Message: msg})
}
