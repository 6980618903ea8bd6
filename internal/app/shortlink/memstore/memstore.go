// Package memstore is a process-local shortlink.Store, used for DB_DSN=memory:
// and as the store behind the engine tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"cutl.local/internal/app/shortlink"
)

type Store struct {
	mu     sync.RWMutex
	links  map[string]shortlink.Link
	visits []shortlink.Visit
}

var _ shortlink.Store = (*Store)(nil)

func New() *Store {
	return &Store{links: make(map[string]shortlink.Link)}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.links[code]
	return ok, nil
}

func (s *Store) Insert(ctx context.Context, link shortlink.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.Code]; ok {
		return shortlink.ErrDuplicateCode
	}
	s.links[link.Code] = link
	return nil
}

func (s *Store) Get(ctx context.Context, code string) (shortlink.Link, error) {
	if err := ctx.Err(); err != nil {
		return shortlink.Link{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[code]
	if !ok {
		return shortlink.Link{}, shortlink.ErrLinkNotFound
	}
	return l, nil
}

func (s *Store) Delete(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[code]; !ok {
		return false, nil
	}
	delete(s.links, code)
	return true, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for code, l := range s.links {
		if l.ExpiresAt < now {
			delete(s.links, code)
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertVisit(ctx context.Context, v shortlink.Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, v)
	return nil
}

func (s *Store) CountVisits(ctx context.Context, code string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, v := range s.visits {
		if v.Code == code {
			n++
		}
	}
	return n, nil
}

func (s *Store) VisitsByCountry(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.groupBy(ctx, code, func(v shortlink.Visit) *string { return v.Country })
}

func (s *Store) VisitsByReferer(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.groupBy(ctx, code, func(v shortlink.Visit) *string { return v.Referer })
}

// groupBy treats nil as its own group, like SQL GROUP BY over a nullable column.
func (s *Store) groupBy(ctx context.Context, code string, key func(shortlink.Visit) *string) ([]shortlink.CountStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var nullCount int64
	counts := make(map[string]int64)
	for _, v := range s.visits {
		if v.Code != code {
			continue
		}
		if k := key(v); k != nil {
			counts[*k]++
		} else {
			nullCount++
		}
	}
	s.mu.RUnlock()

	out := make([]shortlink.CountStat, 0, len(counts)+1)
	for k, c := range counts {
		k := k
		out = append(out, shortlink.CountStat{Value: &k, Count: c})
	}
	if nullCount > 0 {
		out = append(out, shortlink.CountStat{Count: nullCount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return valueOf(out[i].Value) < valueOf(out[j].Value)
	})
	return out, nil
}

func valueOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Store) VisitsDaily(ctx context.Context, code string, since int64) ([]shortlink.DailyStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, v := range s.visits {
		if v.Code != code || v.VisitedAt < since {
			continue
		}
		counts[time.Unix(v.VisitedAt, 0).UTC().Format(time.DateOnly)]++
	}
	s.mu.RUnlock()

	out := make([]shortlink.DailyStat, 0, len(counts))
	for d, c := range counts {
		out = append(out, shortlink.DailyStat{Date: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) RecentVisits(ctx context.Context, code string, limit int) ([]shortlink.VisitRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []shortlink.VisitRow
	// 倒序遍历：同一秒内后写入的排在前面
	for i := len(s.visits) - 1; i >= 0; i-- {
		v := s.visits[i]
		if v.Code != code {
			continue
		}
		out = append(out, shortlink.VisitRow{
			VisitedAt: v.VisitedAt,
			IP:        v.IP,
			Country:   v.Country,
			City:      v.City,
			UserAgent: v.UserAgent,
			Referer:   v.Referer,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].VisitedAt > out[j].VisitedAt })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
