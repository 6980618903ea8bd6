package shortlink

import (
	"context"
	"errors"
)

// Store 层约定的错误。实现方必须返回这两个哨兵（可以 wrap），service 依赖 errors.Is 判断。
var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrDuplicateCode = errors.New("duplicate code")
)

// Link is the persisted code -> url mapping. Times are Unix seconds.
type Link struct {
	Code        string
	OriginalURL string
	CreatedAt   int64
	ExpiresAt   int64
}

// Expired reports whether the link is past its expiry at now.
// now == ExpiresAt is still live.
func (l Link) Expired(now int64) bool {
	return now > l.ExpiresAt
}

// Visit is one redirect event. Optional fields are nil when unknown.
type Visit struct {
	Code      string  `json:"code"`
	VisitedAt int64   `json:"visited_at"`
	IP        *string `json:"ip,omitempty"`
	Country   *string `json:"country,omitempty"`
	City      *string `json:"city,omitempty"`
	UserAgent *string `json:"user_agent,omitempty"`
	Referer   *string `json:"referer,omitempty"`
}

// VisitRow is a recorded visit as returned to analytics readers.
type VisitRow struct {
	VisitedAt int64   `json:"visited_at"`
	IP        *string `json:"ip"`
	Country   *string `json:"country"`
	City      *string `json:"city"`
	UserAgent *string `json:"user_agent"`
	Referer   *string `json:"referer"`
}

// CountStat is one group of a GROUP BY over a nullable column.
type CountStat struct {
	Value *string `json:"value"`
	Count int64   `json:"count"`
}

// DailyStat counts visits on one UTC day (YYYY-MM-DD).
type DailyStat struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// LinkStore covers the link lifecycle. Insert must be atomic and must fail with
// ErrDuplicateCode instead of overwriting an existing row.
type LinkStore interface {
	Exists(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, link Link) error
	Get(ctx context.Context, code string) (Link, error)
	Delete(ctx context.Context, code string) (bool, error)
	// DeleteExpired removes every link with expires_at < now and returns how many.
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}

// VisitStore is the append-only visit log plus the read aggregations over it.
// Grouped results are ordered by count desc, daily by date desc, recent by recency desc.
type VisitStore interface {
	InsertVisit(ctx context.Context, v Visit) error
	CountVisits(ctx context.Context, code string) (int64, error)
	VisitsByCountry(ctx context.Context, code string) ([]CountStat, error)
	VisitsByReferer(ctx context.Context, code string) ([]CountStat, error)
	VisitsDaily(ctx context.Context, code string, since int64) ([]DailyStat, error)
	RecentVisits(ctx context.Context, code string, limit int) ([]VisitRow, error)
}

type Store interface {
	LinkStore
	VisitStore
}

// GeoResolver maps a client IP to (country, city). Either may be nil.
type GeoResolver interface {
	Lookup(ip string) (country, city *string)
}

// VisitRecorder accepts a visit without blocking the caller. Delivery is best effort.
type VisitRecorder interface {
	Collect(v Visit)
}

// CodeFilter is a cheap local pre-check for generated candidates. MightExist may
// return false positives but never false negatives for codes it has been told about.
type CodeFilter interface {
	Add(code string)
	MightExist(code string) bool
}
