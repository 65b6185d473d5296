// Package retry provides a small blocking retry policy with exponential
// backoff, used around transient-prone external calls.
package retry

import (
	"context"
	"time"
)

// Policy describes how a call is retried. Retryable decides whether an
// error is worth another attempt; a nil Retryable retries everything.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// Default mirrors the embedding capability's historical policy: 5 attempts,
// exponential 2x backoff between 4s and 60s.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   4 * time.Second,
		Multiplier:  2,
		MaxDelay:    60 * time.Second,
		Retryable:   retryable,
	}
}

// Do invokes fn until it succeeds, exhausts MaxAttempts, hits a
// non-retryable error, or the context is cancelled. The last error is
// returned on failure.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
