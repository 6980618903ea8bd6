package cache

import (
	"time"

	"cutl.local/internal/app/shortlink"
	"github.com/dgraph-io/ristretto"
)

// LocalCache 基于 ristretto 的本地内存缓存（L1），只缓存存在的短链。
//
// 不做本地负缓存：别的实例刚创建的短码如果被本地记成"不存在"，
// 在 TTL 内会一直 404。负缓存只放在各实例共享的 Redis 里。
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache 创建本地缓存
// maxItems: 最大缓存条目数（建议 10000-100000）
// maxCost: 最大内存占用（字节，建议 16MB-64MB）
func NewLocalCache(maxItems int64, maxCost int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache: cache,
		ttl:   5 * time.Minute, // 本地缓存 TTL 短一些，保证多实例一致性
	}, nil
}

func (l *LocalCache) Get(code string) (shortlink.Link, bool) {
	if v, ok := l.cache.Get(code); ok {
		return v.(shortlink.Link), true
	}
	return shortlink.Link{}, false
}

// Set 的 TTL 不超过短链剩余寿命；已过期的不缓存。
func (l *LocalCache) Set(link shortlink.Link, now time.Time) {
	ttl := cappedTTL(l.ttl, link, now)
	if ttl <= 0 {
		return
	}
	// cost=1 表示按条目数限制
	l.cache.SetWithTTL(link.Code, link, 1, ttl)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Wait blocks until buffered writes are applied.
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}

func cappedTTL(max time.Duration, link shortlink.Link, now time.Time) time.Duration {
	remaining := time.Unix(link.ExpiresAt, 0).Sub(now)
	if remaining < max {
		return remaining
	}
	return max
}
