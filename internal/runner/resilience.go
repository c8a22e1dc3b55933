package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/taskgraph/internal/config"
	"github.com/aristath/taskgraph/internal/scheduler"
)

// newBreaker creates the circuit breaker that guards handler calls. It trips
// after cfg.BreakerFailures consecutive failures; zero disables tripping.
func newBreaker(cfg config.RetryConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "handler",
		MaxRequests: 1, // One trial call in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     time.Duration(cfg.BreakerTimeout),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is not a handler failure
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// newBackOff builds the retry policy for a single task.
func newBackOff(ctx context.Context, cfg config.RetryConfig) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = time.Duration(cfg.InitialInterval)
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = time.Duration(cfg.MaxInterval)
	}
	if cfg.Multiplier >= 1 {
		policy.Multiplier = cfg.Multiplier
	}
	policy.MaxElapsedTime = time.Duration(cfg.MaxElapsed)

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
}

// callWithRetry runs the handler for task with exponential backoff behind the
// circuit breaker. It returns the number of handler invocations made.
func callWithRetry(ctx context.Context, h Handler, task scheduler.Task, cb *gobreaker.CircuitBreaker, cfg config.RetryConfig) (int, error) {
	attempts := 0

	operation := func() error {
		// Fail fast if cancelled
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		_, err := cb.Execute(func() (interface{}, error) {
			attempts++
			return nil, h(ctx, task.Clone())
		})
		if err == nil {
			return nil
		}

		// Open circuit: don't retry
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, newBackOff(ctx, cfg))
	return attempts, err
}
