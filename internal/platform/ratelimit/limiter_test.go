package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	l := NewLimiter(60, 2) // 每秒补一个，容量 2
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		if ok, _ := l.AllowAt("1.2.3.4", now); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	ok, retry := l.AllowAt("1.2.3.4", now)
	if ok {
		t.Fatalf("3rd request in burst should be denied")
	}
	if retry <= 0 || retry > time.Second {
		t.Fatalf("unexpected retryAfter: %v", retry)
	}

	// 其他 key 不受影响
	if ok, _ := l.AllowAt("5.6.7.8", now); !ok {
		t.Fatalf("independent key should pass")
	}

	if ok, _ := l.AllowAt("1.2.3.4", now.Add(time.Second)); !ok {
		t.Fatalf("should pass after one refill interval")
	}
	if ok, _ := l.AllowAt("1.2.3.4", now.Add(time.Second)); ok {
		t.Fatalf("only one token should have been refilled")
	}
}

func TestLimiterDeniedRequestsDoNotConsume(t *testing.T) {
	l := NewLimiter(60, 1)
	now := time.Unix(1_700_000_000, 0)

	if ok, _ := l.AllowAt("k", now); !ok {
		t.Fatal("first request should pass")
	}
	for i := 0; i < 10; i++ {
		if ok, _ := l.AllowAt("k", now.Add(100*time.Millisecond)); ok {
			t.Fatal("should be denied while empty")
		}
	}
	// 如果被拒的请求也扣令牌，这里要等 10 秒以上
	if ok, _ := l.AllowAt("k", now.Add(2*time.Second)); !ok {
		t.Fatal("denied attempts must not push back the refill")
	}
}

func TestLimiterDefaultRate(t *testing.T) {
	// RATE_LIMIT=10 => 每 6 秒一个令牌
	l := NewLimiter(10, 2)
	if l.interval != 6*time.Second {
		t.Fatalf("interval: got %v, want 6s", l.interval)
	}
	now := time.Unix(1_700_000_000, 0)
	l.AllowAt("ip", now)
	l.AllowAt("ip", now)
	ok, retry := l.AllowAt("ip", now)
	if ok || retry < 5900*time.Millisecond || retry > 6*time.Second+time.Millisecond {
		t.Fatalf("got ok=%v retry=%v, want denied with 6s", ok, retry)
	}
}

func TestLimiterConcurrentSameKey(t *testing.T) {
	l := NewLimiter(1, 5)
	now := time.Unix(1_700_000_000, 0)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.AllowAt("same", now); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != 5 {
		t.Fatalf("allowed %d requests, want exactly burst=5", got)
	}
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	l := NewLimiter(60, 2)
	now := time.Unix(1_700_000_000, 0)
	for i := 0; i < 50; i++ {
		l.AllowAt(fmt.Sprintf("10.0.0.%d", i), now)
	}
	l.AllowAt("fresh", now.Add(10*time.Minute))
	if l.Len() != 51 {
		t.Fatalf("Len: got %d, want 51", l.Len())
	}

	if removed := l.evictIdle(now.Add(10 * time.Minute)); removed != 50 {
		t.Fatalf("evicted %d, want 50", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("Len after evict: got %d, want 1", l.Len())
	}
}
