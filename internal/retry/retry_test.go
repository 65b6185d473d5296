package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Millisecond,
		Retryable:   retryable,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(nil).Do(context.Background(), func() error {
		calls++
		if calls < 5 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("still failing")
	err := fastPolicy(nil).Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 5, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	p := fastPolicy(func(err error) bool { return !errors.Is(err, permanent) })
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2}
	err := p.Do(ctx, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
