package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff defaults for Retry
const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	backoffMultiplier     = 2.0
)

// RetryPolicy controls Retry. Clients never retry on their own; callers
// opt in with --retries.
type RetryPolicy struct {
	Retries        int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewRetryPolicy returns a policy with the default backoff
func NewRetryPolicy(retries int) RetryPolicy {
	return RetryPolicy{Retries: retries, InitialBackoff: DefaultInitialBackoff, MaxBackoff: DefaultMaxBackoff}
}

// IsRetryable reports whether err is a rate limit or an unavailable
// provider. Cancellation is never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *RateLimitError
	var pu *ProviderUnavailableError
	return errors.As(err, &rl) || errors.As(err, &pu)
}

// Backoff returns the wait before retry number attempt (0-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * backoffMultiplier)
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// wait returns how long to sleep after err; a Retry-After hint wins over
// the computed backoff.
func (p RetryPolicy) wait(attempt int, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return p.Backoff(attempt)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy's retries are used up. Stream requests are retried only up to the
// point the response starts; a Stream that fails mid-way is not replayed.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("operation cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		if attempt < p.Retries {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("operation cancelled: %w", ctx.Err())
			case <-time.After(p.wait(attempt, err)):
			}
		}
	}

	if p.Retries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("giving up after %d attempts: %w", p.Retries+1, lastErr)
}
