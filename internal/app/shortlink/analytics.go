package shortlink

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	AnalyticsWindowDays = 30
	RecentVisitsLimit   = 20
)

// Report is the analytics view of one link.
type Report struct {
	Code         string      `json:"code"`
	OriginalURL  string      `json:"original_url"`
	CreatedAt    int64       `json:"created_at"`
	ExpiresAt    int64       `json:"expires_at"`
	TotalVisits  int64       `json:"total_visits"`
	Countries    []CountStat `json:"countries"`
	Referers     []CountStat `json:"referers"`
	Daily        []DailyStat `json:"daily"`
	RecentVisits []VisitRow  `json:"recent_visits"`
}

// Aggregator builds Reports. It only reads.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Summarize returns ErrNotFound for unknown or expired codes. The five visit
// queries run concurrently and are not taken from one snapshot.
func (a *Aggregator) Summarize(ctx context.Context, code string, now int64) (Report, error) {
	if code == "" || len(code) > MaxCodeLen {
		return Report{}, ErrNotFound
	}
	link, err := a.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			return Report{}, ErrNotFound
		}
		return Report{}, fmt.Errorf("get link: %w", err)
	}
	if link.Expired(now) {
		return Report{}, ErrNotFound
	}

	r := Report{
		Code:        link.Code,
		OriginalURL: link.OriginalURL,
		CreatedAt:   link.CreatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
	since := now - AnalyticsWindowDays*24*60*60

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r.TotalVisits, err = a.store.CountVisits(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		r.Countries, err = a.store.VisitsByCountry(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		r.Referers, err = a.store.VisitsByReferer(gctx, code)
		return err
	})
	g.Go(func() (err error) {
		r.Daily, err = a.store.VisitsDaily(gctx, code, since)
		return err
	})
	g.Go(func() (err error) {
		r.RecentVisits, err = a.store.RecentVisits(gctx, code, RecentVisitsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("aggregate visits: %w", err)
	}

	// JSON 里始终输出 []，不要输出 null
	if r.Countries == nil {
		r.Countries = []CountStat{}
	}
	if r.Referers == nil {
		r.Referers = []CountStat{}
	}
	if r.Daily == nil {
		r.Daily = []DailyStat{}
	}
	if r.RecentVisits == nil {
		r.RecentVisits = []VisitRow{}
	}
	return r, nil
}
