package stats

import (
	"sync"

	"cutl.local/internal/app/shortlink"
	"cutl.local/internal/platform/metrics"
)

// Collector 收集访问记录，Collect 永远不阻塞调用方
type Collector interface {
	shortlink.VisitRecorder
	Close()
}

// ChannelCollector 基于 channel 的进程内收集器，由 Consumer 消费
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan shortlink.Visit
	closed bool
}

var _ Collector = (*ChannelCollector)(nil)

func NewChannelCollector(bufferSize int) *ChannelCollector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ChannelCollector{ch: make(chan shortlink.Visit, bufferSize)}
}

func (c *ChannelCollector) Collect(v shortlink.Visit) {
	// 读锁保证不会往已关闭的 channel 里写
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		metrics.VisitsDropped.WithLabelValues("closed").Inc()
		return
	}
	select {
	case c.ch <- v:
	default:
		// 通道满了，丢弃
		metrics.VisitsDropped.WithLabelValues("buffer_full").Inc()
	}
}

func (c *ChannelCollector) Visits() <-chan shortlink.Visit {
	return c.ch
}

// Close 可以重复调用
func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}
