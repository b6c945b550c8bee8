package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy is an explicit retry policy: how many attempts, how the
// backoff grows, and which errors are worth another try. It replaces
// exception-style retry-until-success loops with a value the caller
// can inspect and tests can shrink.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy matches the upstream feed contract: 3 attempts,
// exponential backoff starting at 2s, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
		Retryable:   IsRetryable,
	}
}

// Backoff returns the wait before the given attempt (attempt 2 waits
// BaseDelay, each further attempt doubles, capped at MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay << uint(attempt-2)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Sleeper blocks for d or until ctx is done. Injected so tests can
// record waits instead of actually sleeping.
type Sleeper func(ctx context.Context, d time.Duration) error

// SystemSleeper waits on the wall clock.
func SystemSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping the policy backoff
// between attempts. Non-retryable errors abort immediately.
func Do(ctx context.Context, p Policy, sleep Sleeper, fn func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = SystemSleeper
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Backoff(attempt)); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}

// IsRetryable reports whether an error represents a transient feed
// condition: a typed retryable API error or a network timeout.
func IsRetryable(err error) bool {
	var apiErr *FeedAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return false
}
