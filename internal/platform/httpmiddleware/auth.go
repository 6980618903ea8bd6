package httpmiddleware

import (
	"net/http"
	"strings"

	"cutl.local/gee"
	"cutl.local/internal/platform/auth"
)

// parseBearer 解析 Authorization header 中的 Bearer token
// 返回 token 字符串，如果格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// RequireToken 校验共享的 Bearer token。verifier 为 nil 表示没有配置 token，直接放行。
func RequireToken(verifier auth.TokenVerifier) gee.HandlerFunc {
	return func(ctx *gee.Context) {
		if verifier == nil {
			ctx.Next()
			return
		}
		header := ctx.Req.Header.Get("Authorization")
		if header == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "missing authorization header")
			return
		}
		token := parseBearer(header)
		if token == "" {
			ctx.AbortWithError(http.StatusUnauthorized, "invalid authorization format")
			return
		}
		if err := verifier.Verify(token); err != nil {
			ctx.AbortWithError(http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx.Next()
	}
}
