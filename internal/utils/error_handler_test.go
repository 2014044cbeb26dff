package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("poll: %w", NewError(KindMalformedCounterLine, "netdev", errors.New("line 3")))

	assert.ErrorIs(t, err, ErrMalformedCounterLine)
	assert.NotErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, KindMalformedCounterLine, KindOf(err))
	assert.Contains(t, err.Error(), "netdev")
	assert.False(t, Fatal(err))
}

func TestKindOfBareSentinel(t *testing.T) {
	assert.Equal(t, KindConnectionExhausted, KindOf(fmt.Errorf("x: %w", ErrConnectionExhausted)))
	assert.True(t, Fatal(ErrConnectionExhausted))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestKindOfJoinedErrors(t *testing.T) {
	err := errors.Join(
		NewError(KindSourceUnavailable, "redis info", errors.New("refused")),
		NewError(KindConnectionExhausted, "redis connect", nil),
	)
	assert.True(t, Fatal(err))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestErrorHandlerAggregates(t *testing.T) {
	eh := NewErrorHandler(10)
	eh.HandleError(nil)
	eh.HandleError(NewError(KindSourceUnavailable, "redis info", errors.New("a")))
	eh.HandleError(NewError(KindSourceUnavailable, "redis info", errors.New("b")))
	eh.HandleError(NewError(KindMalformedCounterLine, "diskstats", errors.New("c")))

	details := eh.GetErrors()
	require.Len(t, details, 2)
	assert.Equal(t, "redis info", details[0].Op)
	assert.Equal(t, 2, details[0].Count)
	assert.Contains(t, details[0].Message, "b")

	counts := eh.CountByKind()
	assert.Equal(t, 2, counts[KindSourceUnavailable])
	assert.Equal(t, 1, counts[KindMalformedCounterLine])

	eh.ClearErrors()
	assert.Empty(t, eh.GetErrors())
}

func TestErrorHandlerEvictsOldest(t *testing.T) {
	eh := NewErrorHandler(2)
	eh.HandleError(NewError(KindSourceUnavailable, "a", nil))
	time.Sleep(time.Millisecond)
	eh.HandleError(NewError(KindSourceUnavailable, "b", nil))
	time.Sleep(time.Millisecond)
	eh.HandleError(NewError(KindSourceUnavailable, "c", nil))

	ops := map[string]bool{}
	for _, d := range eh.GetErrors() {
		ops[d.Op] = true
	}
	assert.Equal(t, map[string]bool{"b": true, "c": true}, ops)
}
