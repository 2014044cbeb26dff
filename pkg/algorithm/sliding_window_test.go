package algorithm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowEvictsBySize(t *testing.T) {
	sw := NewSlidingWindow(3, 0)
	base := time.Unix(1000, 0)
	for i, v := range []float64{1, 2, 3, 4} {
		sw.AddAt(v, base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, 3, sw.Count())
	assert.InDelta(t, 3.0, sw.Average(), 1e-9)
}

func TestSlidingWindowEvictsByAge(t *testing.T) {
	sw := NewSlidingWindow(10, 5*time.Second)
	base := time.Unix(1000, 0)
	sw.AddAt(100, base)
	sw.AddAt(200, base.Add(2*time.Second))
	sw.AddAt(300, base.Add(7*time.Second))

	// base 早于 7s-5s，被清理
	assert.Equal(t, 2, sw.Count())
	assert.InDelta(t, 250.0, sw.Average(), 1e-9)

	// 窗口为空时平均值为 0
	assert.Zero(t, NewSlidingWindow(3, 0).Average())
}
