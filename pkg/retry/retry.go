package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
)

// Policy controls retry behavior for transient external failures
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is the standard policy for external calls: 1s base delay,
// doubling per attempt, capped at 10s
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Do runs op until it succeeds or attempts are exhausted, sleeping with
// exponential backoff between attempts. The context cancels the wait.
func Do(ctx context.Context, name string, policy Policy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.BaseDelay << (attempt - 2)
			if policy.MaxDelay > 0 && delay > policy.MaxDelay {
				delay = policy.MaxDelay
			}

			logger.Debug("retrying operation",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}

		if err := op(ctx); err != nil {
			lastErr = err
			logger.Warn("operation attempt failed",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Error(err),
			)
			continue
		}

		return nil
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}
