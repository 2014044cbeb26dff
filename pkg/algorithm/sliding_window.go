package algorithm

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口实现
//
// 过期以最近一次写入的时间为基准，由写入方提供时间戳，
// 因此窗口只随采集周期推进，不依赖墙钟。
type SlidingWindow struct {
	size       int           // 窗口大小
	values     []float64     // 窗口中的值
	timestamps []time.Time   // 对应的时间戳
	sum        float64       // 当前窗口值的总和
	maxAge     time.Duration // 数据最大存活时间，0 表示不过期
	mu         sync.RWMutex
}

// NewSlidingWindow 创建新的滑动窗口
func NewSlidingWindow(size int, maxAge time.Duration) *SlidingWindow {
	if size <= 0 {
		size = 1
	}
	return &SlidingWindow{
		size:       size,
		values:     make([]float64, 0, size),
		timestamps: make([]time.Time, 0, size),
		maxAge:     maxAge,
	}
}

// AddAt 以给定时间添加新值
func (sw *SlidingWindow) AddAt(value float64, at time.Time) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.cleanExpired(at)

	// 如果窗口已满，移除最旧的值
	if len(sw.values) >= sw.size {
		sw.sum -= sw.values[0]
		sw.values = sw.values[1:]
		sw.timestamps = sw.timestamps[1:]
	}

	sw.values = append(sw.values, value)
	sw.timestamps = append(sw.timestamps, at)
	sw.sum += value
}

// Average 获取窗口平均值
func (sw *SlidingWindow) Average() float64 {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.values) == 0 {
		return 0
	}
	return sw.sum / float64(len(sw.values))
}

// Count 获取窗口中的值数量
func (sw *SlidingWindow) Count() int {
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return len(sw.values)
}

// cleanExpired 清理早于 now-maxAge 的数据
// 注意：调用此方法前必须已获取写锁
func (sw *SlidingWindow) cleanExpired(now time.Time) {
	if sw.maxAge <= 0 || len(sw.values) == 0 {
		return
	}

	cutoff := now.Add(-sw.maxAge)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if !sw.timestamps[i].Before(cutoff) {
			break
		}
		sw.sum -= sw.values[i]
	}
	if i > 0 {
		sw.values = sw.values[i:]
		sw.timestamps = sw.timestamps[i:]
	}
}
