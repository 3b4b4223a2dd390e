// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"eodl/internal/errs"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Retryable classifies an error as transient. Nil means errs.IsRetryable.
	Retryable func(error) bool

	// Jitter spreads delays over [0.5, 1.5) of their nominal value.
	Jitter bool
}

// DefaultPolicy returns the policy used for page fetches and transfers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Retryable:   errs.IsRetryable,
		Jitter:      true,
	}
}

// Never returns a policy that performs a single attempt.
func Never() Policy {
	return Policy{MaxAttempts: 1}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return errs.IsRetryable(err)
	}
	return p.Retryable(err)
}

// Delay returns the wait before the given attempt (attempt 1 is the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done. It returns the number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	limit := p.attempts()

	for attempt := 0; attempt < limit; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, p.Delay(attempt)); err != nil {
				return attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		err := fn(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return attempt + 1, fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		if !p.retryable(err) {
			return attempt + 1, err
		}
	}

	if limit == 1 {
		return limit, lastErr
	}
	return limit, fmt.Errorf("giving up after %d attempts: %w", limit, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
