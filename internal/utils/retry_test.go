package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		name   string
		policy RetryPolicy
		n      int
		want   time.Duration
	}{
		{"zero base", RetryPolicy{}, 3, 0},
		{"fixed", RetryPolicy{BaseDelay: time.Second, BackoffFactor: 1}, 4, time.Second},
		{"factor below one is fixed", RetryPolicy{BaseDelay: time.Second, BackoffFactor: 0.5}, 2, time.Second},
		{"exponential", RetryPolicy{BaseDelay: 100 * time.Millisecond, BackoffFactor: 2}, 3, 800 * time.Millisecond},
		{"capped", RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}, 5, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.n))
		})
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestRetryPolicyBudget(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, BackoffFactor: 2}
	assert.Equal(t, 1500*time.Millisecond, p.Budget())

	p.MaxAttempts = 1
	assert.Zero(t, p.Budget())
}
