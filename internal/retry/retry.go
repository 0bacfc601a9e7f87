package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/prom"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// ShouldRetry decides whether a failure is worth another attempt. Nil retries every error.
	ShouldRetry func(error) bool
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay is base * 2^(attempt-1) for the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(1<<(attempt-1))
}

// Notifier surfaces progress to whoever started the operation.
type Notifier interface {
	Retrying(label string, attempt, maxAttempts int, delay time.Duration, err error)
	Failed(label string, attempts int, err error, retry func(ctx context.Context) error)
	// Recovered follows a success that needed more than one attempt.
	Recovered(label string, attempts int)
}

type nopNotifier struct{}

func (nopNotifier) Retrying(string, int, int, time.Duration, error) {
}

func (nopNotifier) Failed(string, int, error, func(ctx context.Context) error) {
}

func (nopNotifier) Recovered(string, int) {
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do runs op until it succeeds, the policy refuses a retry or MaxAttempts is reached.
// A non retryable error is returned unchanged after its first occurrence.
func Do[T any](ctx context.Context, policy Policy, label string, notifier Notifier, op func(ctx context.Context) (T, error)) (T, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				prom.IncRetry(label, "recovered")
				logger.Info("operation recovered", "label", label, "attempt", attempt)
				notifier.Recovered(label, attempt)
			}
			return result, nil
		}
		lastErr = err

		if policy.ShouldRetry != nil && !policy.ShouldRetry(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Delay(attempt)
		prom.IncRetry(label, "retrying")
		logger.Warn("operation failed, retrying", "label", label, "attempt", attempt, "max_attempts", policy.MaxAttempts, "delay", delay, "error", err)
		notifier.Retrying(label, attempt, policy.MaxAttempts, delay, err)

		if err := wait(ctx, delay); err != nil {
			lastErr = err
			exhausted := &ExhaustedError{Label: label, Attempts: attempt, Last: lastErr}
			notifier.Failed(label, attempt, exhausted, manual(policy, label, notifier, op))
			return zero, exhausted
		}
	}

	exhausted := &ExhaustedError{Label: label, Attempts: policy.MaxAttempts, Last: lastErr}
	prom.IncRetry(label, "exhausted")
	logger.Error("operation failed", "label", label, "attempts", policy.MaxAttempts, "error", lastErr)
	notifier.Failed(label, policy.MaxAttempts, exhausted, manual(policy, label, notifier, op))
	return zero, exhausted
}

// manual restarts the whole sequence with a fresh attempt budget.
func manual[T any](policy Policy, label string, notifier Notifier, op func(ctx context.Context) (T, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := Do(ctx, policy, label, notifier, op)
		return err
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
