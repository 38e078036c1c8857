package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("lock wait timeout")

type fakeSleeper struct {
	waits []time.Duration
	err   error
}

func (s *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

func bookingPolicy(s *fakeSleeper) Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       Fixed(time.Second),
		Retryable:   func(err error) bool { return errors.Is(err, errBusy) },
		Sleep:       s.sleep,
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	s := &fakeSleeper{}
	calls := 0

	err := bookingPolicy(s).Do(context.Background(), func(context.Context, int) error {
		calls++
		return errBusy
	})

	require.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, s.waits)
}

func TestDoSucceedsOnSecondAttempt(t *testing.T) {
	s := &fakeSleeper{}
	var seen []int

	err := bookingPolicy(s).Do(context.Background(), func(_ context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt == 1 {
			return errBusy
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Len(t, s.waits, 1)
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	s := &fakeSleeper{}
	other := errors.New("duplicate entry")
	calls := 0

	err := bookingPolicy(s).Do(context.Background(), func(context.Context, int) error {
		calls++
		return other
	})

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.waits)
}

func TestDoReturnsLastErrorWhenSleepIsCancelled(t *testing.T) {
	s := &fakeSleeper{err: context.Canceled}
	calls := 0

	err := bookingPolicy(s).Do(context.Background(), func(context.Context, int) error {
		calls++
		return errBusy
	})

	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestOnRetryReportsAttemptAndDelay(t *testing.T) {
	s := &fakeSleeper{}
	p := bookingPolicy(s)
	var attempts []int
	p.OnRetry = func(attempt int, err error, d time.Duration) {
		attempts = append(attempts, attempt)
		assert.Equal(t, time.Second, d)
	}

	_ = p.Do(context.Background(), func(context.Context, int) error { return errBusy })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errBusy
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExponentialCapsAtMax(t *testing.T) {
	d := Exponential(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, d(1))
	assert.Equal(t, 2*time.Second, d(2))
	assert.Equal(t, 16*time.Second, d(5))
	assert.Equal(t, 30*time.Second, d(6))
	assert.Equal(t, 30*time.Second, d(40))
}

func TestSleepContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), 0))
}
