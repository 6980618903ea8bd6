package httpmiddleware

import (
	"net/http"
	"strconv"
	"time"

	"cutl.local/gee"
	"cutl.local/internal/platform/metrics"
)

// Metrics 按路由模板而不是原始路径打标签，短码不会把时序数撑爆
func Metrics() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()
		defer metrics.HTTPInflightRequests.Dec()

		route := ctx.RoutePattern
		if route == "" {
			route = "unmatched"
		}
		method := metricMethod(ctx.Method)
		defer func() {
			status := strconv.Itoa(ctx.Writer.Status())
			metrics.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}()
		ctx.Next()
	}
}

// metricMethod 把非标准方法归成 OTHER
func metricMethod(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return m
	}
	return "OTHER"
}
