package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cutl.local/gee"
)

func TestReqID(t *testing.T) {
	engine := gee.New()
	engine.Use(ReqID(), AccessLog())
	var seen string
	engine.GET("/x", func(ctx *gee.Context) { seen = ctx.Req.Header.Get(requestIDHeader) })

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		got := w.Header().Get(requestIDHeader)
		if len(got) != 32 || got != seen {
			t.Fatalf("header=%q seen=%q", got, seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(requestIDHeader, "abc")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if got := w.Header().Get(requestIDHeader); got != "abc" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("oversized replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(requestIDHeader, strings.Repeat("a", maxRequestIDLen+1))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if got := w.Header().Get(requestIDHeader); len(got) != 32 {
			t.Fatalf("got %q", got)
		}
	})
}

// 错误响应里的 request_id 和响应头一致
func TestReqIDInErrorBody(t *testing.T) {
	engine := gee.New()
	engine.Use(ReqID())
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(requestIDHeader, "rid-42")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"request_id":"rid-42"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
