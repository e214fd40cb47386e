package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	calls := 0

	attempts, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithNotify(func(_ int, _ error, next time.Duration) { delays = append(delays, next) }))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestDoDelaysMatchPolicy(t *testing.T) {
	p := fastPolicy(5)
	var delays []time.Duration

	_, err := Do(context.Background(), p, func(context.Context, int) error {
		return errors.New("always")
	}, WithNotify(func(_ int, _ error, next time.Duration) { delays = append(delays, next) }))

	require.Error(t, err)
	require.Len(t, delays, 4)
	for i, d := range delays {
		assert.Equal(t, p.Delay(i+1), d)
	}
}

func TestDoExhausts(t *testing.T) {
	boom := errors.New("boom")
	attempts, err := Do(context.Background(), fastPolicy(2), func(context.Context, int) error { return boom })

	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, boom)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	boom := errors.New("unsupported")
	attempts, err := Do(context.Background(), fastPolicy(5), func(context.Context, int) error {
		return Permanent(boom)
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, boom, err)
}

func TestDoProceedFalse(t *testing.T) {
	boom := errors.New("boom")
	attempts, err := Do(context.Background(), fastPolicy(5), func(context.Context, int) error {
		return boom
	}, WithProceed(func() bool { return false }))

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, err, boom)
}

func TestDoContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	attempts, err := Do(ctx, p, func(context.Context, int) error {
		cancel()
		return errors.New("fail")
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}
