package httpmiddleware

import (
	"cutl.local/gee"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceName 把 otelhttp 创建的 span 改名为路由模板，避免每个短码一个 span 名
func TraceName() gee.HandlerFunc {
	return func(ctx *gee.Context) {
		route := ctx.RoutePattern
		if route == "" {
			route = "unmatched"
		}
		span := trace.SpanFromContext(ctx.Req.Context())
		span.SetName(ctx.Method + " " + route)
		span.SetAttributes(attribute.String("http.route", route))
		ctx.Next()
	}
}
