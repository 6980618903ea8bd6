package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cutl.local/internal/platform/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrCodeTaken: 自定义短码已被占用（409）。
	ErrCodeTaken = errors.New("code already exists")
	// ErrNotFound: 短码不存在或已过期，对调用方来说两者不可区分（404）。
	ErrNotFound = errors.New("short link not found")
	// ErrCodeSpaceExhausted: 连续 MaxGenerateAttempts 次生成的短码都已存在（500）。
	ErrCodeSpaceExhausted = errors.New("failed to generate unique code after multiple attempts")
)

const (
	MaxGenerateAttempts = 10

	storeTimeout  = 3 * time.Second
	cleanupTimout = time.Second
)

// CreateRequest mirrors the shorten payload. A nil Code asks for a generated
// code, a nil TTL means DefaultTTL.
type CreateRequest struct {
	URL  string
	Code *string
	TTL  *string
}

// Client describes the caller of a redirect, captured into the Visit.
type Client struct {
	IP        string
	UserAgent string
	Referer   string
}

// Service runs link creation and resolution on top of a Store.
type Service struct {
	store    Store
	recorder VisitRecorder
	geo      GeoResolver
	filter   CodeFilter
	generate func() string
	tracer   trace.Tracer
}

type Option func(*Service)

// WithGeoResolver enables country/city capture on visits.
func WithGeoResolver(g GeoResolver) Option {
	return func(s *Service) { s.geo = g }
}

// WithCodeFilter lets generated candidates that are already known locally be
// skipped without a store round-trip.
func WithCodeFilter(f CodeFilter) Option {
	return func(s *Service) { s.filter = f }
}

// WithGenerator replaces GenerateCode.
func WithGenerator(fn func() string) Option {
	return func(s *Service) { s.generate = fn }
}

// NewService wires the engine. recorder may be nil, in which case visits are not recorded.
func NewService(store Store, recorder VisitRecorder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		recorder: recorder,
		generate: GenerateCode,
		tracer:   otel.Tracer("cutl.local/shortlink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, resolves a code and persists the link.
func (s *Service) Create(ctx context.Context, req CreateRequest, now int64) (Link, error) {
	ctx, span := s.tracer.Start(ctx, "shortlink.Create")
	defer span.End()

	link, err := s.create(ctx, req, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Link{}, err
	}
	span.SetAttributes(attribute.String("shortlink.code", link.Code))
	return link, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest, now int64) (Link, error) {
	if err := ValidateURL(req.URL); err != nil {
		return Link{}, err
	}

	ttl := DefaultTTL
	if req.TTL != nil {
		v, err := ParseTTL(*req.TTL)
		if err != nil {
			return Link{}, err
		}
		ttl = v
	}

	if req.Code != nil {
		return s.createCustom(ctx, *req.Code, req.URL, now, ttl)
	}
	return s.createGenerated(ctx, req.URL, now, ttl)
}

func (s *Service) createCustom(ctx context.Context, code, url string, now, ttl int64) (Link, error) {
	if err := ValidateCode(code); err != nil {
		return Link{}, err
	}
	exists, err := s.store.Exists(ctx, code)
	if err != nil {
		return Link{}, fmt.Errorf("check code: %w", err)
	}
	if exists {
		return Link{}, fmt.Errorf("%w: '%s'", ErrCodeTaken, code)
	}

	link := Link{Code: code, OriginalURL: url, CreatedAt: now, ExpiresAt: now + ttl}
	if err := s.insert(ctx, link, "custom"); err != nil {
		// 并发下另一个请求先插入了同一个 code：主键约束裁决，败者拿到 409
		if errors.Is(err, ErrDuplicateCode) {
			return Link{}, fmt.Errorf("%w: '%s'", ErrCodeTaken, code)
		}
		return Link{}, fmt.Errorf("save link: %w", err)
	}
	return link, nil
}

func (s *Service) createGenerated(ctx context.Context, url string, now, ttl int64) (Link, error) {
	for attempt := 0; attempt < MaxGenerateAttempts; attempt++ {
		code := s.generate()
		if s.filter != nil && s.filter.MightExist(code) {
			continue
		}
		exists, err := s.store.Exists(ctx, code)
		if err != nil {
			return Link{}, fmt.Errorf("check code: %w", err)
		}
		if exists {
			if s.filter != nil {
				s.filter.Add(code)
			}
			continue
		}

		link := Link{Code: code, OriginalURL: url, CreatedAt: now, ExpiresAt: now + ttl}
		err = s.insert(ctx, link, "generated")
		if err == nil {
			return link, nil
		}
		// Lost an insert race for this candidate; it costs one attempt.
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		return Link{}, fmt.Errorf("save link: %w", err)
	}

	metrics.CodeSpaceExhausted.Inc()
	slog.Error("code generation exhausted", "attempts", MaxGenerateAttempts)
	return Link{}, ErrCodeSpaceExhausted
}

// insert 不跟随调用方取消：请求中途断开时，写入要么完整可见，要么整体失败。
func (s *Service) insert(ctx context.Context, link Link, source string) error {
	dbctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.store.Insert(dbctx, link); err != nil {
		return err
	}
	if s.filter != nil {
		s.filter.Add(link.Code)
	}
	metrics.LinksCreated.WithLabelValues(source).Inc()
	return nil
}

// Resolve returns the target URL of a live link and records the visit.
// Missing and expired links both yield ErrNotFound.
func (s *Service) Resolve(ctx context.Context, code string, now int64, client Client) (string, error) {
	if code == "" || len(code) > MaxCodeLen {
		return "", ErrNotFound
	}

	ctx, span := s.tracer.Start(ctx, "shortlink.Resolve", trace.WithAttributes(attribute.String("shortlink.code", code)))
	defer span.End()

	link, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return "", ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("get link: %w", err)
	}

	if link.Expired(now) {
		s.dropExpired(ctx, code)
		return "", ErrNotFound
	}

	s.recordVisit(code, now, client)
	metrics.ShortlinkRedirects.Inc()
	return link.OriginalURL, nil
}

// dropExpired is the lazy half of expiry enforcement; the sweeper catches anything missed.
func (s *Service) dropExpired(ctx context.Context, code string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimout)
	defer cancel()
	if _, err := s.store.Delete(dctx, code); err != nil {
		slog.Warn("delete expired link failed", "code", code, "err", err)
	}
}

func (s *Service) recordVisit(code string, now int64, c Client) {
	if s.recorder == nil {
		return
	}
	v := Visit{
		Code:      code,
		VisitedAt: now,
		IP:        optional(c.IP),
		UserAgent: optional(c.UserAgent),
		Referer:   optional(c.Referer),
	}
	if s.geo != nil && c.IP != "" {
		v.Country, v.City = s.geo.Lookup(c.IP)
	}
	s.recorder.Collect(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
