// Package retry centralizes the retry/backoff policy injected into pipeline
// stages instead of each stage reimplementing its own loop.
package retry

import (
	"context"
	"fmt"
	"time"

	"research-pipeline/internal/common/errors"
)

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable decides whether an error is worth another attempt. When nil,
	// errors.IsRetryable is used.
	Retryable func(error) bool
}

// Default returns the policy used by retryable pipeline stages.
func Default(maxAttempts int, initialDelay time.Duration) Policy {
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs op, retrying with exponential backoff while the policy allows it.
// Context cancellation aborts immediately between attempts.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return err
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
