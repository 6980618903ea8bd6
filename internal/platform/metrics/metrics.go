package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标，否则直接 panic，所以用 once 包一层。
	once sync.Once

	// HTTPRequestsTotal：累计请求数。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（/:code，而不是真实 path，否则每个短码都是一个新 label）
	// - status：状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布，用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// LinksCreated：成功创建的短链数，source = custom | generated。
	LinksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutl_links_created_total",
			Help: "Short links created.",
		},
		[]string{"source"},
	)

	ShortlinkRedirects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutl_redirects_total",
			Help: "Successful redirects to a live link.",
		},
	)

	// CodeSpaceExhausted 持续增长说明生成的短码空间已经很拥挤。
	CodeSpaceExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutl_code_generation_exhausted_total",
			Help: "Create requests that failed to find a free generated code.",
		},
	)

	LinksSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutl_links_swept_total",
			Help: "Expired links removed by the background sweeper.",
		},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutl_rate_limited_total",
			Help: "Requests rejected by the per-IP limiter.",
		},
		[]string{"route"},
	)

	// CacheOperations：layer = l1 | l2，result = hit | hit_negative | miss。
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutl_cache_operations_total",
			Help: "Link cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	// VisitsDropped：缓冲区满或传输失败而丢弃的访问记录。
	VisitsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cutl_visits_dropped_total",
			Help: "Visits that were not recorded.",
		},
		[]string{"reason"},
	)

	VisitsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cutl_visits_recorded_total",
			Help: "Visits written to the store.",
		},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			LinksCreated,
			ShortlinkRedirects,
			CodeSpaceExhausted,
			LinksSwept,
			RateLimited,
			CacheOperations,
			VisitsDropped,
			VisitsRecorded,
		)
	})
}
