package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/platform/metrics"
	"github.com/redis/go-redis/v9"
)

const notFoundSentinel = "__nil__"

// Lookup is the outcome of a cache read.
type Lookup int

const (
	Miss Lookup = iota
	Hit
	// HitNegative 表示缓存明确记录了"短码不存在"
	HitNegative
)

// cachedLink 是 Redis 里的值。带上 expires_at，读缓存的一方仍然能判断过期。
type cachedLink struct {
	URL       string `json:"u"`
	CreatedAt int64  `json:"c"`
	ExpiresAt int64  `json:"e"`
}

// LinkCache 两级缓存：L1 本地 ristretto，L2 Redis。client 为 nil 时只有 L1。
type LinkCache struct {
	client   *redis.Client
	local    *LocalCache
	ttl      time.Duration
	emptyTTL time.Duration
	now      func() time.Time
}

func NewLinkCache(client *redis.Client, local *LocalCache) *LinkCache {
	return &LinkCache{
		client:   client,
		local:    local,
		ttl:      time.Hour,
		emptyTTL: 30 * time.Second,
		now:      time.Now,
	}
}

func key(code string) string { return "cutl:link:" + code }

func (c *LinkCache) Get(ctx context.Context, code string) (shortlink.Link, Lookup, error) {
	// L1: 本地缓存
	if c.local != nil {
		if link, ok := c.local.Get(code); ok {
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return link, Hit, nil
		}
	}
	if c.client == nil {
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
		return shortlink.Link{}, Miss, nil
	}

	// L2: Redis
	res, err := c.client.Get(ctx, key(code)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return shortlink.Link{}, Miss, nil
	}
	if err != nil {
		return shortlink.Link{}, Miss, err
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		return shortlink.Link{}, HitNegative, nil
	}

	var v cachedLink
	if err := json.Unmarshal([]byte(res), &v); err != nil {
		// 旧格式或被人手动改过，当作未命中，回源后会被覆盖
		slog.Warn("link cache: bad entry", "code", code, "err", err)
		return shortlink.Link{}, Miss, nil
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()

	link := shortlink.Link{Code: code, OriginalURL: v.URL, CreatedAt: v.CreatedAt, ExpiresAt: v.ExpiresAt}
	// 回填本地缓存
	if c.local != nil {
		c.local.Set(link, c.now())
	}
	return link, Hit, nil
}

// Set 写两级缓存。同时会覆盖此前的负缓存，避免刚创建的短码暂时不可用。
func (c *LinkCache) Set(ctx context.Context, link shortlink.Link) error {
	now := c.now()
	if c.local != nil {
		c.local.Set(link, now)
	}
	if c.client == nil {
		return nil
	}
	ttl := cappedTTL(c.ttl, link, now)
	if ttl <= 0 {
		return c.client.Del(ctx, key(link.Code)).Err()
	}
	data, err := json.Marshal(cachedLink{URL: link.OriginalURL, CreatedAt: link.CreatedAt, ExpiresAt: link.ExpiresAt})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(link.Code), data, ttl).Err()
}

func (c *LinkCache) Delete(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.Del(code)
	}
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key(code)).Err()
}

// SetNotFound 用明确哨兵值做"负缓存"，避免缓存穿透。只写 L2。
// 用 SETNX：回源查不到之后可能已有实例写入了新链接，负缓存不能覆盖它。
func (c *LinkCache) SetNotFound(ctx context.Context, code string) error {
	if c.client == nil {
		return nil
	}
	return c.client.SetNX(ctx, key(code), notFoundSentinel, c.emptyTTL).Err()
}

// Close 关闭本地缓存
func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
