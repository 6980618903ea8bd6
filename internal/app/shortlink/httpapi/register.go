package httpapi

import (
	"cutl.local/gee"
	"cutl.local/internal/platform/auth"
	"cutl.local/internal/platform/httpmiddleware"
	"cutl.local/internal/platform/ratelimit"
)

// Register 挂载短链路由。本包只做 HTTP <-> 领域的翻译，业务逻辑在 internal/app/shortlink。
//
// verifier 为 nil 时需要鉴权的路由对所有人开放；limiter 为 nil 时不限流。
func Register(engine *gee.Engine, h *Handler, verifier auth.TokenVerifier, limiter *ratelimit.Limiter) {
	engine.GET("/healthz", h.Health)

	// 创建接口限流在鉴权之前，错误 token 的请求同样消耗令牌
	engine.POST("/shorten",
		httpmiddleware.RateLimit(limiter, "/shorten"),
		httpmiddleware.RequireToken(verifier),
		h.Create)
	engine.POST("/api/shorten",
		httpmiddleware.RateLimit(limiter, "/api/shorten"),
		h.Create)

	engine.GET("/analytics/:code", httpmiddleware.RequireToken(verifier), h.Analytics)
	engine.GET("/:code", h.Redirect)
}
