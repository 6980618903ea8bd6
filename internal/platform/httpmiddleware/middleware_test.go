package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"cutl.local/gee"
	"cutl.local/internal/platform/auth"
	"cutl.local/internal/platform/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"xff first entry", map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2", "X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3", "Forwarded": "for=4.4.4.4"}, "9.9.9.9:1", "3.3.3.3"},
		{"forwarded", map[string]string{"Forwarded": `for="5.5.5.5:80";proto=https, for=6.6.6.6`}, "9.9.9.9:1", "5.5.5.5"},
		{"forwarded ipv6", map[string]string{"Forwarded": `For="[2001:db8::1]:4711"`}, "9.9.9.9:1", "2001:db8::1"},
		{"peer", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"peer without port", nil, "unix", "unix"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req))
		})
	}
}

func TestRateLimit(t *testing.T) {
	engine := gee.New()
	engine.POST("/shorten", RateLimit(ratelimit.NewLimiter(10, 2), "/shorten"), func(ctx *gee.Context) {
		ctx.Status(http.StatusCreated)
	})

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/shorten", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send("1.1.1.1").Code)
	assert.Equal(t, http.StatusCreated, send("1.1.1.1").Code)

	w := send("1.1.1.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	// 每 6 秒补一个令牌，浮点误差可能让向上取整多出一秒
	assert.Contains(t, []string{"6", "7"}, w.Header().Get("Retry-After"))

	// 不同 IP 各自一个桶
	assert.Equal(t, http.StatusCreated, send("2.2.2.2").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	engine := gee.New()
	engine.POST("/shorten", RateLimit(nil, "/shorten"), func(ctx *gee.Context) { ctx.Status(http.StatusCreated) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/shorten", nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}
}

func TestRequireToken(t *testing.T) {
	verifier, err := auth.NewStaticToken("s3cret")
	require.NoError(t, err)

	engine := gee.New()
	engine.GET("/analytics/:code", RequireToken(verifier), func(ctx *gee.Context) { ctx.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"ok", "Bearer s3cret", http.StatusOK},
		{"case-insensitive scheme", "bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/analytics/abc", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireTokenOpenWithoutVerifier(t *testing.T) {
	engine := gee.New()
	engine.GET("/analytics/:code", RequireToken(nil), func(ctx *gee.Context) { ctx.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/analytics/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParseBearer(t *testing.T) {
	assert.Equal(t, "tok", parseBearer("Bearer tok"))
	assert.Equal(t, "", parseBearer("Bearer"))
	assert.Equal(t, "", parseBearer("Bearer a b"))
	assert.Equal(t, "", parseBearer("Token tok"))
}

func TestMetricMethod(t *testing.T) {
	assert.Equal(t, http.MethodGet, metricMethod(http.MethodGet))
	assert.Equal(t, "OTHER", metricMethod("PROPFIND"))
}
