package httpmiddleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cutl.local/gee"
	"cutl.local/internal/platform/metrics"
	"cutl.local/internal/platform/ratelimit"
)

// ClientIP 取限流和访问记录用的客户端标识，按顺序取第一个非空的：
// X-Forwarded-For 第一段、X-Real-IP、Forwarded 的 for=、连接对端地址。
//
// 这里不校验代理是否可信，部署时应由前置代理覆盖这些头。
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xrip := strings.TrimSpace(req.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}

	if fwd := forwardedFor(req.Header.Get("Forwarded")); fwd != "" {
		return fwd
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// forwardedFor 解析 RFC 7239 的第一个 for= 参数，如 for="[2001:db8::1]:4711"
func forwardedFor(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	for _, pair := range strings.Split(first, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(k, "for") {
			continue
		}
		v = strings.Trim(v, `"`)
		if strings.HasPrefix(v, "[") {
			if end := strings.IndexByte(v, ']'); end > 0 {
				return v[1:end]
			}
		}
		if host, _, err := net.SplitHostPort(v); err == nil {
			return host
		}
		return v
	}
	return ""
}

// RateLimit 按客户端 IP 做令牌桶限流。limiter 为 nil 表示关闭限流。
func RateLimit(limiter *ratelimit.Limiter, route string) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if limiter == nil {
			ctx.Next()
			return
		}
		allowed, retryAfter := limiter.Allow(ClientIP(ctx.Req))
		if !allowed {
			metrics.RateLimited.WithLabelValues(route).Inc()
			if retryAfter > 0 {
				// Retry-After 单位是秒，向上取整
				secs := int64((retryAfter + time.Second - 1) / time.Second)
				ctx.SetHeader("Retry-After", strconv.FormatInt(secs, 10))
			}
			ctx.AbortWithError(http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}
