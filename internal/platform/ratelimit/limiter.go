package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const shardCount = 32

// Limiter 按 key（一般是客户端 IP）维护令牌桶：容量 burst，每 interval 补一个令牌。
// 状态只在本进程内，多实例部署时每个实例各算各的。
type Limiter struct {
	interval time.Duration
	burst    int
	idleTTL  time.Duration
	shards   [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows perMinute requests per minute per key with the given burst.
func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	interval := time.Minute / time.Duration(perMinute)

	// 桶在空闲 burst*interval 之后一定已经补满，删掉和保留没有区别
	idle := time.Duration(burst) * interval
	if idle < 3*time.Minute {
		idle = 3 * time.Minute
	}

	l := &Limiter{interval: interval, burst: burst, idleTTL: idle}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.shards[h.Sum32()%shardCount]
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	return l.AllowAt(key, time.Now())
}

// AllowAt 返回是否放行；拒绝时第二个返回值是下一个令牌到来前需要等待的时间。
func (l *Limiter) AllowAt(key string, now time.Time) (bool, time.Duration) {
	s := l.shardFor(key)

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	// rate.Limiter 自己是并发安全的，同一个 key 的读改写是原子的
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, l.interval
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	// 不排队：把预订的令牌还回去
	r.CancelAt(now)
	return false, delay
}

// Run 定期清理空闲的桶，直到 ctx 取消。
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

func (l *Limiter) evictIdle(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Sub(b.lastSeen) > l.idleTTL {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
