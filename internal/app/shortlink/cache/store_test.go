package cache

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/app/shortlink/memstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGets struct {
	*memstore.Store
	gets atomic.Int64
}

func (c *countingGets) Get(ctx context.Context, code string) (shortlink.Link, error) {
	c.gets.Add(1)
	time.Sleep(5 * time.Millisecond)
	return c.Store.Get(ctx, code)
}

func newLocal(t *testing.T) *LocalCache {
	t.Helper()
	local, err := NewLocalCache(1000, 1<<20)
	require.NoError(t, err)
	t.Cleanup(local.Close)
	return local
}

func TestCachedStoreServesRepeatedGetsFromL1(t *testing.T) {
	inner := &countingGets{Store: memstore.New()}
	local := newLocal(t)
	s := NewCachedStore(inner, NewLinkCache(nil, local))
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, inner.Store.Insert(ctx, shortlink.Link{Code: "abc", OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://x.example", got.OriginalURL)
	local.Wait()

	for i := 0; i < 5; i++ {
		got, err = s.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, now+600, got.ExpiresAt)
	}
	assert.Equal(t, int64(1), inner.gets.Load())
}

func TestCachedStoreCollapsesConcurrentMisses(t *testing.T) {
	inner := &countingGets{Store: memstore.New()}
	s := NewCachedStore(inner, NewLinkCache(nil, nil))
	ctx := context.Background()
	now := time.Now().Unix()
	require.NoError(t, inner.Store.Insert(ctx, shortlink.Link{Code: "hot", OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Get(ctx, "hot")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, inner.gets.Load(), int64(20))
}

func TestCachedStoreDeleteInvalidates(t *testing.T) {
	inner := memstore.New()
	local := newLocal(t)
	s := NewCachedStore(inner, NewLinkCache(nil, local))
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, s.Insert(ctx, shortlink.Link{Code: "d", OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}))
	local.Wait()
	_, ok := local.Get("d")
	require.True(t, ok)

	deleted, err := s.Delete(ctx, "d")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = s.Get(ctx, "d")
	assert.ErrorIs(t, err, shortlink.ErrLinkNotFound)
}

func TestCachedStoreInsertStillDetectsDuplicates(t *testing.T) {
	s := NewCachedStore(memstore.New(), NewLinkCache(nil, newLocal(t)))
	ctx := context.Background()
	link := shortlink.Link{Code: "dup", OriginalURL: "https://x.example", CreatedAt: 1, ExpiresAt: time.Now().Unix() + 60}

	require.NoError(t, s.Insert(ctx, link))
	assert.ErrorIs(t, s.Insert(ctx, link), shortlink.ErrDuplicateCode)
}

func TestLocalCacheSkipsExpiredLinks(t *testing.T) {
	local := newLocal(t)
	now := time.Now()
	local.Set(shortlink.Link{Code: "old", ExpiresAt: now.Unix() - 1}, now)
	local.Wait()
	_, ok := local.Get("old")
	assert.False(t, ok)
}

func TestBloomFilter(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)
	assert.False(t, b.MightExist("abc"))
	b.Add("abc")
	assert.True(t, b.MightExist("abc"))
}

func TestBloomFilterResetsWhenSaturated(t *testing.T) {
	b := NewBloomFilter(10, 0.01)
	for i := 0; i < 40; i++ {
		b.Add(fmt.Sprintf("code%02d", i))
	}
	assert.Less(t, b.Count(), uint32(30))
	assert.True(t, b.MightExist("code39"))
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLinkCacheRedisRoundTrip(t *testing.T) {
	client := redisClient(t)
	c := NewLinkCache(client, nil)
	ctx := context.Background()
	code := "t" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = client.Del(context.Background(), key(code)).Err() })

	_, state, err := c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, Miss, state)

	require.NoError(t, c.SetNotFound(ctx, code))
	_, state, err = c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, HitNegative, state)

	now := time.Now().Unix()
	link := shortlink.Link{Code: code, OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 120}
	require.NoError(t, c.Set(ctx, link))
	got, state, err := c.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, Hit, state)
	assert.Equal(t, link, got)

	ttl, err := client.TTL(ctx, key(code)).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 120*time.Second)
}

// pausingGets 读完底层存储后停住，等 release 关闭再返回
type pausingGets struct {
	*memstore.Store
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *pausingGets) Get(ctx context.Context, code string) (shortlink.Link, error) {
	link, err := p.Store.Get(ctx, code)
	p.once.Do(func() { close(p.read) })
	<-p.release
	return link, err
}

func TestNegativeEntryDoesNotOverwriteConcurrentCreate(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	code := "race" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = client.Del(context.Background(), key(code)).Err() })

	inner := &pausingGets{Store: memstore.New(), read: make(chan struct{}), release: make(chan struct{})}
	s := NewCachedStore(inner, NewLinkCache(client, nil))

	missErr := make(chan error, 1)
	go func() {
		_, err := s.Get(ctx, code)
		missErr <- err
	}()

	select {
	case <-inner.read:
	case <-time.After(2 * time.Second):
		t.Fatal("Get never reached the store")
	}

	now := time.Now().Unix()
	link := shortlink.Link{Code: code, OriginalURL: "https://x.example", CreatedAt: now, ExpiresAt: now + 600}
	require.NoError(t, s.Insert(ctx, link))
	close(inner.release)
	assert.ErrorIs(t, <-missErr, shortlink.ErrLinkNotFound)

	val, err := client.Get(ctx, key(code)).Result()
	require.NoError(t, err)
	assert.NotEqual(t, notFoundSentinel, val)

	got, err := s.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, link, got)
}
