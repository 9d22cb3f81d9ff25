package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classified struct{ retryable bool }

func (c classified) Error() string     { return "classified" }
func (c classified) IsRetryable() bool { return c.retryable }

func instant(p Policy, slept *[]time.Duration) Policy {
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return ctx.Err()
	}
	return p
}

func TestDelayGrowsTowardMax(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{10, 20, 40, 80, 100, 100}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, p.Delay(i+1), "attempt %d", i+1)
	}
	assert.Zero(t, Policy{}.Delay(1))
}

func TestCallSucceedsAfterTransientFailures(t *testing.T) {
	var slept []time.Duration
	calls := 0
	v, err := Call(context.Background(), instant(DefaultPolicy(), &slept), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestCallGivesUpAtAttemptLimit(t *testing.T) {
	var slept []time.Duration
	calls := 0
	p := instant(DefaultPolicy(), &slept)
	p.MaxAttempts = 50

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return errors.New("unavailable")
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, AttemptLimit, exhausted.Attempts)
	assert.Equal(t, AttemptLimit, calls)
	assert.Len(t, slept, AttemptLimit-1)
}

func TestNonRetryableErrorsStopImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("bad request"))},
		{"classified", classified{retryable: false}},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept []time.Duration
			calls := 0
			err := Do(context.Background(), instant(DefaultPolicy(), &slept), func(ctx context.Context) error {
				calls++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, slept)
		})
	}
}

func TestClassifiedRetryableIsRetried(t *testing.T) {
	assert.True(t, IsRetryable(classified{retryable: true}))
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(nil))
}

func TestCancellationAbortsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := DefaultPolicy()
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	start := time.Now()
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}
