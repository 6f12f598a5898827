package usecase

import (
	"context"
	"time"

	"clinscribe/internal/retry"
)

const (
	opAnalyze   = "analyze"
	opTranslate = "translate"
	opRefine    = "refine"
	opVerify    = "verify"
)

// callService runs one external operation under the controller retry policy
// and records its outcome.
func callService[T any](ctx context.Context, c *SessionController, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := c.cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.deps.Metrics.RecordServiceRetry(op)
		c.logger.Warn("service quota exceeded, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
	}

	started := time.Now()
	result, err := retry.Do(ctx, policy, fn)
	c.deps.Metrics.RecordServiceCall(op, err, time.Since(started))
	return result, err
}
