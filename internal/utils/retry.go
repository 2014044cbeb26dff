package utils

import (
	"context"
	"math"
	"time"
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxAttempts   int           // 最大尝试次数（含第一次）
	BaseDelay     time.Duration // 基础延迟
	MaxDelay      time.Duration // 最大延迟
	BackoffFactor float64       // 退避因子，<=1 时为固定延迟
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay 计算第 n 次失败（从 0 开始）之后的等待时间
func (rp RetryPolicy) Delay(n int) time.Duration {
	if rp.BaseDelay <= 0 {
		return 0
	}
	factor := rp.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(rp.BaseDelay) * math.Pow(factor, float64(n)))
	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// Budget 一轮重试中全部退避等待的总时长
func (rp RetryPolicy) Budget() time.Duration {
	var total time.Duration
	for n := 0; n < rp.MaxAttempts-1; n++ {
		total += rp.Delay(n)
	}
	return total
}

// Sleep 等待 d，ctx 取消时提前返回
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
