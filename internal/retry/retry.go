package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is an exponential retry policy with a capped delay
type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}

// DefaultPolicy returns 3 attempts starting at 1s, doubling, capped at 30s
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
}

// Delay is the wait after the given failed attempt (1-based):
// min(base * multiplier^(attempt-1), max)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.multiplier(), float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

func (p Policy) multiplier() float64 {
	if p.Multiplier < 1 {
		return 1
	}
	return p.Multiplier
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.multiplier()
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type options struct {
	notify   func(attempt int, err error, next time.Duration)
	proceed  func() bool
	sleepFor func(ctx context.Context, d time.Duration) error
}

// Option customizes Do
type Option func(*options)

// WithNotify is called after each failed attempt that will be retried
func WithNotify(fn func(attempt int, err error, next time.Duration)) Option {
	return func(o *options) { o.notify = fn }
}

// WithProceed is checked before every retry; returning false stops retrying
func WithProceed(fn func() bool) Option {
	return func(o *options) { o.proceed = fn }
}

// ErrStopped is returned, wrapping the last failure, when WithProceed stops the loop
var ErrStopped = errors.New("retry stopped")

// Do runs op until it succeeds, fails permanently, or MaxAttempts is reached.
// It returns the number of attempts made and the last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error, opts ...Option) (int, error) {
	o := options{sleepFor: sleep}
	for _, opt := range opts {
		opt(&o)
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := p.backOff()
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return attempt, perm.Err
		}
		if attempt >= maxAttempts {
			return attempt, err
		}
		if o.proceed != nil && !o.proceed() {
			return attempt, fmt.Errorf("%w: %w", ErrStopped, err)
		}

		next := b.NextBackOff()
		if o.notify != nil {
			o.notify(attempt, err, next)
		}
		if serr := o.sleepFor(ctx, next); serr != nil {
			return attempt, fmt.Errorf("%w (last error: %v)", serr, err)
		}
		if o.proceed != nil && !o.proceed() {
			return attempt, fmt.Errorf("%w: %w", ErrStopped, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
