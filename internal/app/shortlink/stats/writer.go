package stats

import (
	"context"
	"log/slog"
	"time"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/platform/metrics"
)

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
	flushTimeout     = 5 * time.Second
)

// VisitWriter 是访问记录的落库接口，shortlink.VisitStore 满足它
type VisitWriter interface {
	InsertVisit(ctx context.Context, v shortlink.Visit) error
}

// batchWriter 由支持批量写入的存储实现（postgres / sqlite）
type batchWriter interface {
	InsertVisits(ctx context.Context, visits []shortlink.Visit) error
}

// writeBatch 优先整批写；不支持批量时逐条写，单条失败不影响其它记录。
func writeBatch(store VisitWriter, batch []shortlink.Visit) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if bw, ok := store.(batchWriter); ok {
		if err := bw.InsertVisits(ctx, batch); err != nil {
			slog.Error("visits: batch insert failed", "err", err, "count", len(batch))
			metrics.VisitsDropped.WithLabelValues("store_error").Add(float64(len(batch)))
			return
		}
		metrics.VisitsRecorded.Add(float64(len(batch)))
		slog.Debug("visits: flushed", "count", len(batch))
		return
	}

	written := 0
	for _, v := range batch {
		if err := store.InsertVisit(ctx, v); err != nil {
			slog.Error("visits: insert failed", "err", err, "code", v.Code)
			metrics.VisitsDropped.WithLabelValues("store_error").Inc()
			continue
		}
		written++
	}
	metrics.VisitsRecorded.Add(float64(written))
	slog.Debug("visits: flushed", "count", written)
}

// batcher 攒够 batchSize 或每隔 interval 刷一次
type batcher struct {
	store     VisitWriter
	batchSize int
	interval  time.Duration
}

// run 阻塞直到 ctx 取消或 src 关闭，退出前把剩余记录刷掉
func (b *batcher) run(ctx context.Context, src <-chan shortlink.Visit) {
	batch := make([]shortlink.Visit, 0, b.batchSize)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.drain(batch, src)
			return
		case v, ok := <-src:
			if !ok {
				writeBatch(b.store, batch)
				return
			}
			batch = append(batch, v)
			if len(batch) >= b.batchSize {
				writeBatch(b.store, batch)
				batch = batch[:0] //清空切片，保留容量
			}
		case <-ticker.C:
			if len(batch) > 0 {
				writeBatch(b.store, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain 把已经在缓冲区里的记录也一起刷掉，不再等待新的
func (b *batcher) drain(batch []shortlink.Visit, src <-chan shortlink.Visit) {
	for {
		select {
		case v, ok := <-src:
			if !ok {
				writeBatch(b.store, batch)
				return
			}
			batch = append(batch, v)
		default:
			writeBatch(b.store, batch)
			return
		}
	}
}

// Consumer 消费 ChannelCollector 里的访问记录并批量落库
type Consumer struct {
	batcher
	collector *ChannelCollector
}

func NewConsumer(store VisitWriter, collector *ChannelCollector) *Consumer {
	return &Consumer{
		batcher: batcher{
			store:     store,
			batchSize: defaultBatchSize,
			interval:  defaultInterval,
		},
		collector: collector,
	}
}

// Run 阻塞，直到 ctx 取消或 collector 关闭
func (c *Consumer) Run(ctx context.Context) {
	c.run(ctx, c.collector.Visits())
}
