package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cutl.local/internal/app/shortlink"
	"golang.org/x/sync/singleflight"
)

// 缓存读写失败不影响主流程，超时给得很短
const cacheTimeout = 50 * time.Millisecond

// CachedStore 在 shortlink.Store 前面加一层读缓存，只加速 Get。
// Exists 和 Insert 总是直达底层存储：唯一性只能由权威存储判定。
type CachedStore struct {
	shortlink.Store
	cache *LinkCache
	group singleflight.Group
}

func NewCachedStore(store shortlink.Store, cache *LinkCache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

func (s *CachedStore) Get(ctx context.Context, code string) (shortlink.Link, error) {
	cctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	link, state, err := s.cache.Get(cctx, code)
	cancel()
	if err != nil {
		slog.Warn("link cache: get failed", "code", code, "err", err)
	}
	switch state {
	case Hit:
		return link, nil
	case HitNegative:
		return shortlink.Link{}, shortlink.ErrLinkNotFound
	}

	// 同一个热点短码并发回源只查一次库
	v, err, _ := s.group.Do(code, func() (any, error) {
		link, err := s.Store.Get(ctx, code)
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
		defer cancel()
		switch {
		case err == nil:
			if cerr := s.cache.Set(wctx, link); cerr != nil {
				slog.Warn("link cache: set failed", "code", code, "err", cerr)
			}
		case errors.Is(err, shortlink.ErrLinkNotFound):
			if cerr := s.cache.SetNotFound(wctx, code); cerr != nil {
				slog.Warn("link cache: set negative failed", "code", code, "err", cerr)
			}
		}
		return link, err
	})
	if err != nil {
		return shortlink.Link{}, err
	}
	return v.(shortlink.Link), nil
}

// Insert 成功后立刻写缓存，覆盖可能存在的负缓存。
func (s *CachedStore) Insert(ctx context.Context, link shortlink.Link) error {
	if err := s.Store.Insert(ctx, link); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, link); err != nil {
		slog.Warn("link cache: set failed", "code", link.Code, "err", err)
	}
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, code string) (bool, error) {
	ok, err := s.Store.Delete(ctx, code)
	if err != nil {
		return ok, err
	}
	if cerr := s.cache.Delete(ctx, code); cerr != nil {
		slog.Warn("link cache: delete failed", "code", code, "err", cerr)
	}
	return ok, nil
}

// Ping 透传给底层存储（如果它支持）。
func (s *CachedStore) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
