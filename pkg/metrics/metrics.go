// Package metrics 定义推荐服务的 Prometheus 指标。
//
// 覆盖范围：
//   - 缓存命中率（物品缓存、推荐集合）
//   - 召回源耗时、错误与产出数量
//   - HTTP 接口延迟与吞吐
//   - 上游熔断器状态
//   - 后台任务与离线训练
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 缓存
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"kind"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"kind"},
	)

	CacheCorrupt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rms_cache_corrupt_total",
			Help: "Total number of undecodable cache payloads treated as misses",
		},
	)

	// 召回
	RecallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rms_recall_duration_seconds",
			Help:    "Recall source latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	RecallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_recall_errors_total",
			Help: "Total number of swallowed recall source failures",
		},
		[]string{"source"},
	)

	RecallItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_recall_items_total",
			Help: "Total number of candidates produced per recall source",
		},
		[]string{"source"},
	)

	// 物化
	MaterializeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_materialize_total",
			Help: "Total number of item materializations",
		},
		[]string{"type", "result"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rms_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// 熔断器：0 = closed, 1 = half-open, 2 = open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rms_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_circuit_breaker_requests_total",
			Help: "Upstream requests through circuit breakers",
		},
		[]string{"name", "result"},
	)

	// 后台任务
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rms_jobs_processed_total",
			Help: "Total number of background jobs processed",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rms_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// 离线训练
	TrainUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rms_train_users",
			Help: "Number of users written by the last train run",
		},
		[]string{"strategy"},
	)

	TrainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rms_train_duration_seconds",
			Help:    "Train run duration in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		},
		[]string{"strategy"},
	)
)

// RecordCache 记录一次缓存读取
func RecordCache(kind string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(kind).Inc()
	} else {
		CacheMisses.WithLabelValues(kind).Inc()
	}
}

// RecordRecall 记录一次召回源执行
func RecordRecall(source string, duration time.Duration, items int, err error) {
	RecallDuration.WithLabelValues(source).Observe(duration.Seconds())
	RecallItems.WithLabelValues(source).Add(float64(items))
	if err != nil {
		RecallErrors.WithLabelValues(source).Inc()
	}
}

// RecordMaterialize 记录一次物化，result 为 hit / miss / empty / error
func RecordMaterialize(itemType, result string) {
	MaterializeTotal.WithLabelValues(itemType, result).Inc()
}

// RecordAPIRequest 记录一次 HTTP 请求
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBreaker 记录一次经过熔断器的请求
func RecordBreaker(name string, state int, err error) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	result := "success"
	if err != nil {
		result = "failure"
	}
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordJob 记录一次后台任务
func RecordJob(job string, duration time.Duration, err error) {
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	JobsProcessed.WithLabelValues(job, status).Inc()
}

// RecordTrain 记录一次离线训练
func RecordTrain(strategy string, users int, duration time.Duration) {
	TrainUsers.WithLabelValues(strategy).Set(float64(users))
	TrainDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}
