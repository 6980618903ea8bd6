package shortlink

import (
	"context"
	"log/slog"
	"time"

	"cutl.local/internal/platform/metrics"
)

const DefaultSweepInterval = time.Minute

// Sweeper periodically deletes expired links so they do not pile up when
// nobody visits them again.
type Sweeper struct {
	store    LinkStore
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(store LinkStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run 阻塞直到 ctx 取消。启动时先清理一次，停机期间过期的链接不用等一个 interval。
func (s *Sweeper) Run(ctx context.Context) {
	_, _ = s.SweepOnce(ctx, s.now().Unix())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 单次失败只记日志，下一个 tick 继续
			_, _ = s.SweepOnce(ctx, s.now().Unix())
		}
	}
}

// SweepOnce deletes every link with expires_at < now.
func (s *Sweeper) SweepOnce(ctx context.Context, now int64) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	n, err := s.store.DeleteExpired(dbctx, now)
	if err != nil {
		slog.Error("sweeper: delete expired failed", "err", err)
		return 0, err
	}
	if n > 0 {
		metrics.LinksSwept.Add(float64(n))
		slog.Info("sweeper: removed expired links", "count", n)
	}
	return n, nil
}
