package cache

import (
	"log/slog"
	"sync"

	"cutl.local/internal/app/shortlink"
	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter 记录本进程见过的短码。生成短码时用它跳过大概率已占用的候选，
// 省掉一次 Exists 查询；它只是提示，唯一性仍由存储的主键保证。
type BloomFilter struct {
	mu       sync.RWMutex
	filter   *bloom.BloomFilter
	capacity uint
	fpRate   float64
}

var _ shortlink.CodeFilter = (*BloomFilter)(nil)

// NewBloomFilter 按预期元素数量和误判率（建议 0.01）估算位数组大小
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter:   bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		capacity: expectedItems,
		fpRate:   falsePositiveRate,
	}
}

// Add 超过容量后误判率会快速上升，这时直接重建一个空过滤器
func (b *BloomFilter) Add(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint(b.filter.ApproximatedSize()) >= b.capacity {
		slog.Warn("code filter saturated, resetting", "capacity", b.capacity)
		b.filter = bloom.NewWithEstimates(b.capacity, b.fpRate)
	}
	b.filter.AddString(code)
}

// MightExist 返回 false 表示本进程一定没见过这个短码
func (b *BloomFilter) MightExist(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(code)
}

// Count 估算已添加的元素数量
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
