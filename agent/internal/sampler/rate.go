// Package sampler 把单调递增的计数器转换为每周期速率。
package sampler

import (
	"fmt"
	"sync"
	"time"

	"github.com/han-fei/redismon/internal/utils"
)

// Sample 某一时刻观察到的计数器元组
type Sample struct {
	Counters []uint64
	At       time.Time
}

// Rate 两次相邻采样之间的速率结果
type Rate struct {
	Deltas  []uint64      // 各计数器增量，回绕时为 0
	Rates   []float64     // 各计数器每秒速率
	Elapsed time.Duration // 两次采样的间隔
}

// RateSampler 按实体名保存上一次采样，并计算速率
type RateSampler struct {
	name   string
	states map[string]Sample
	mu     sync.Mutex
}

// NewRateSampler 创建速率采样器，name 仅用于错误信息
func NewRateSampler(name string) *RateSampler {
	return &RateSampler{
		name:   name,
		states: make(map[string]Sample),
	}
}

// Update 用新的计数器元组更新实体状态
//
// 首次见到的实体只记录状态，返回 ok=false。
// now 不晚于上次采样时返回 ok=false 和 NonMonotonicTime 错误，且不修改状态。
// 计数器变小（进程重启等）时该计数器速率为 0。
func (s *RateSampler) Update(entity string, counters []uint64, now time.Time) (Rate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := Sample{Counters: append([]uint64(nil), counters...), At: now}

	prev, ok := s.states[entity]
	if !ok {
		s.states[entity] = current
		return Rate{}, false, nil
	}

	elapsed := now.Sub(prev.At)
	if elapsed <= 0 {
		return Rate{}, false, utils.NewError(utils.KindNonMonotonicTime, s.name+"/"+entity,
			fmt.Errorf("elapsed %v since %s", elapsed, prev.At.Format(time.RFC3339Nano)))
	}

	// 元组长度变化说明数据源格式变了，重新建立基线
	if len(prev.Counters) != len(current.Counters) {
		s.states[entity] = current
		return Rate{}, false, nil
	}

	seconds := elapsed.Seconds()
	rate := Rate{
		Deltas:  make([]uint64, len(counters)),
		Rates:   make([]float64, len(counters)),
		Elapsed: elapsed,
	}
	for i, v := range current.Counters {
		old := prev.Counters[i]
		if v < old {
			continue
		}
		rate.Deltas[i] = v - old
		rate.Rates[i] = float64(v-old) / seconds
	}

	s.states[entity] = current
	return rate, true, nil
}

// Prune 删除本周期未出现的实体状态
func (s *RateSampler) Prune(present map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for entity := range s.states {
		if _, ok := present[entity]; !ok {
			delete(s.states, entity)
			dropped = append(dropped, entity)
		}
	}
	return dropped
}

// Last 返回实体最近一次采样
func (s *RateSampler) Last(entity string) (Sample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[entity]
	if !ok {
		return Sample{}, false
	}
	st.Counters = append([]uint64(nil), st.Counters...)
	return st, true
}

// Len 返回当前跟踪的实体数
func (s *RateSampler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// IOAwait 平均每次 IO 的耗时：delta(busy)/delta(count)，count 无增量时为 0
func IOAwait(deltaCount, deltaBusy uint64) float64 {
	if deltaCount == 0 {
		return 0
	}
	return float64(deltaBusy) / float64(deltaCount)
}
