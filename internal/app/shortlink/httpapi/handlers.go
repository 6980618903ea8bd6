package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cutl.local/gee"
	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/platform/httpmiddleware"
)

type ShortenRequest struct {
	URL  string  `json:"url"`
	Code *string `json:"code,omitempty"`
	TTL  *string `json:"ttl,omitempty"`
}

type ShortenResponse struct {
	Code      string `json:"code"`
	ShortURL  string `json:"short_url"`
	ExpiresAt int64  `json:"expires_at"`
}

type Handler struct {
	svc     *shortlink.Service
	agg     *shortlink.Aggregator
	baseURL string
	now     func() time.Time
}

func NewHandler(svc *shortlink.Service, agg *shortlink.Aggregator, baseURL string) *Handler {
	return &Handler{
		svc:     svc,
		agg:     agg,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

func (h *Handler) Create(ctx *gee.Context) {
	var req ShortenRequest
	if err := ctx.BindJSON(&req); err != nil {
		return
	}
	link, err := h.svc.Create(ctx.Req.Context(), shortlink.CreateRequest{
		URL:  req.URL,
		Code: req.Code,
		TTL:  req.TTL,
	}, h.now().Unix())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, ShortenResponse{
		Code:      link.Code,
		ShortURL:  h.baseURL + "/" + link.Code,
		ExpiresAt: link.ExpiresAt,
	})
}

// Redirect 308 跳转；找不到或已过期都是 404
func (h *Handler) Redirect(ctx *gee.Context) {
	target, err := h.svc.Resolve(ctx.Req.Context(), ctx.Param("code"), h.now().Unix(), shortlink.Client{
		IP:        httpmiddleware.ClientIP(ctx.Req),
		UserAgent: ctx.Req.UserAgent(),
		Referer:   ctx.Req.Referer(),
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Redirect(http.StatusPermanentRedirect, target)
}

func (h *Handler) Analytics(ctx *gee.Context) {
	report, err := h.agg.Summarize(ctx.Req.Context(), ctx.Param("code"), h.now().Unix())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (h *Handler) Health(ctx *gee.Context) {
	ctx.JSON(http.StatusOK, gee.H{"status": "ok"})
}

// writeError 把领域错误映射成状态码。500 只回通用文案，原因写日志。
func writeError(ctx *gee.Context, err error) {
	switch {
	case errors.Is(err, shortlink.ErrInvalidURL),
		errors.Is(err, shortlink.ErrInvalidCode),
		errors.Is(err, shortlink.ErrInvalidTTL):
		ctx.AbortWithError(http.StatusBadRequest, err.Error())
	case errors.Is(err, shortlink.ErrCodeTaken):
		ctx.AbortWithError(http.StatusConflict, err.Error())
	case errors.Is(err, shortlink.ErrNotFound):
		ctx.AbortWithError(http.StatusNotFound, err.Error())
	default:
		slog.Error("request failed",
			"request_id", ctx.Req.Header.Get("X-Request-ID"),
			"method", ctx.Method,
			"path", ctx.Path,
			"err", err)
		ctx.AbortWithError(http.StatusInternalServerError, "internal server error")
	}
}
