// Package retry implements a bounded retry policy that is independent of what
// is being retried. A Policy decides how many attempts are made, how long to
// wait between them and which errors are worth another attempt.
package retry

import (
	"context"
	"time"
)

// Policy is a bounded retry configuration. The zero value makes exactly one
// attempt and never retries.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay returns the wait after the given failed attempt (1-based).
	Delay func(attempt int) time.Duration
	// Retryable reports whether err may succeed on another attempt.
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Fixed returns a delay function that always waits d.
func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Exponential returns a delay function that doubles from base up to max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return d
	}
}

// SleepContext waits for d, returning early with ctx.Err() if ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The error from the last attempt is returned
// unchanged so callers can still classify it.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt == max || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, d)
		}
		if serr := sleep(ctx, d); serr != nil {
			return err
		}
	}
	return err
}
