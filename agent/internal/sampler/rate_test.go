package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/han-fei/redismon/internal/utils"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFirstObservationYieldsNoRate(t *testing.T) {
	s := NewRateSampler("disk")

	_, ok, err := s.Update("sda", []uint64{100}, t0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())

	r, ok, err := s.Update("sda", []uint64{400}, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint64{300}, r.Deltas)
	assert.InDelta(t, 150.0, r.Rates[0], 1e-9)
	assert.Equal(t, 2*time.Second, r.Elapsed)
}

func TestCounterResetClampsToZero(t *testing.T) {
	s := NewRateSampler("server")
	_, _, _ = s.Update("server", []uint64{5000, 10}, t0)

	r, ok, err := s.Update("server", []uint64{100, 30}, t0.Add(time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), r.Deltas[0])
	assert.Zero(t, r.Rates[0])
	assert.InDelta(t, 20.0, r.Rates[1], 1e-9)

	// 重启后的新值成为基线
	r, ok, _ = s.Update("server", []uint64{160, 30}, t0.Add(2*time.Second))
	require.True(t, ok)
	assert.InDelta(t, 60.0, r.Rates[0], 1e-9)
}

func TestNonPositiveElapsedLeavesStateUntouched(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		s := NewRateSampler("net")
		_, _, _ = s.Update("eth0", []uint64{1000}, t0)

		_, ok, err := s.Update("eth0", []uint64{9999}, t0.Add(d))
		assert.False(t, ok)
		require.ErrorIs(t, err, utils.ErrNonMonotonicTime)
		assert.Equal(t, utils.KindNonMonotonicTime, utils.KindOf(err))

		last, found := s.Last("eth0")
		require.True(t, found)
		assert.Equal(t, []uint64{1000}, last.Counters)
		assert.Equal(t, t0, last.At)

		// 仍以原基线计算
		r, ok, err := s.Update("eth0", []uint64{2000}, t0.Add(4*time.Second))
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 250.0, r.Rates[0], 1e-9)
	}
}

func TestTupleLengthChangeResetsBaseline(t *testing.T) {
	s := NewRateSampler("disk")
	_, _, _ = s.Update("sda", []uint64{1, 2}, t0)
	_, ok, err := s.Update("sda", []uint64{1, 2, 3}, t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = s.Update("sda", []uint64{2, 3, 4}, t0.Add(2*time.Second))
	assert.True(t, ok)
}

func TestUpdateCopiesCounters(t *testing.T) {
	s := NewRateSampler("disk")
	counters := []uint64{10}
	_, _, _ = s.Update("sda", counters, t0)
	counters[0] = 99999

	last, _ := s.Last("sda")
	assert.Equal(t, []uint64{10}, last.Counters)
}

func TestPruneDropsAbsentEntities(t *testing.T) {
	s := NewRateSampler("disk")
	_, _, _ = s.Update("sda", []uint64{1}, t0)
	_, _, _ = s.Update("sdb", []uint64{1}, t0)

	dropped := s.Prune(map[string]struct{}{"sda": {}})
	assert.Equal(t, []string{"sdb"}, dropped)
	assert.Equal(t, 1, s.Len())

	// 重新出现的实体按首次观察处理
	_, ok, _ := s.Update("sdb", []uint64{50}, t0.Add(time.Second))
	assert.False(t, ok)
}

func TestIOAwait(t *testing.T) {
	assert.Zero(t, IOAwait(0, 0))
	assert.Zero(t, IOAwait(0, 12345))
	assert.InDelta(t, 2.5, IOAwait(4, 10), 1e-9)
}
