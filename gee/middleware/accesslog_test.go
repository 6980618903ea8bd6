package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cutl.local/gee"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func accessEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return out
		}
		if m["msg"] == "access" {
			out = append(out, m)
		}
	}
}

func TestAccessLogFields(t *testing.T) {
	buf := captureLogs(t)

	r := gee.Default()
	r.Use(ReqID(), AccessLog())
	r.GET("/:code", func(ctx *gee.Context) {
		ctx.Redirect(http.StatusPermanentRedirect, "https://example.com")
	})

	req := httptest.NewRequest(http.MethodGet, "/abc", nil)
	req.Header.Set("X-Request-ID", "abc-id")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := accessEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("want 1 access entry, got %d\nraw=%q", len(entries), buf.String())
	}
	m := entries[0]
	if m["request_id"] != "abc-id" || m["path"] != "/abc" || m["route"] != "/:code" {
		t.Fatalf("unexpected entry %v", m)
	}
	if m["status"] != float64(http.StatusPermanentRedirect) || m["level"] != "INFO" {
		t.Fatalf("status/level: %v %v", m["status"], m["level"])
	}
}

func TestAccessLogErrorLevelOn5xx(t *testing.T) {
	buf := captureLogs(t)

	r := gee.New()
	r.Use(gee.Recovery(), ReqID(), AccessLog())
	r.GET("/panic", func(ctx *gee.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rec.Code)
	}
	// Recovery 自己的日志也要带上 request_id
	if !strings.Contains(buf.String(), `"msg":"panic recovered"`) || !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Fatalf("panic log missing: raw=%q", buf.String())
	}
}
