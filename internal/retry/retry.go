// Package retry provides a small higher-order retry policy with a fixed
// backoff schedule and a caller-supplied retryable predicate.
package retry

import (
	"context"
	"time"
)

// Policy describes how a call is retried. The zero value performs exactly
// one attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff holds the delay before each retry. Attempt n (0-based) waits
	// Backoff[n] before attempt n+1; a missing entry reuses the last one.
	Backoff []time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate treats every error as terminal.
	Retryable func(error) bool
	// Sleep is overridable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs fn until it succeeds, exhausts MaxAttempts, or hits a
// non-retryable error. It returns the last error observed.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = wait
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, p.delay(i)); serr != nil {
			return serr
		}
	}
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt]
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
