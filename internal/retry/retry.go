// Package retry runs an operation again with exponential backoff while its
// error satisfies a caller-supplied predicate.
package retry

import (
	"context"
	"time"
)

// Policy controls which failures are retried and how long to wait between attempts.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	Retryable    func(error) bool

	// Sleep replaces the wall-clock wait; tests use it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry observes every scheduled retry.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retry
// budget is spent. The last error is returned unchanged.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := policy.InitialDelay
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt >= policy.MaxRetries || policy.Retryable == nil || !policy.Retryable(err) {
			return result, err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			var zero T
			return zero, sleepErr
		}
		delay = time.Duration(float64(delay) * multiplier)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
