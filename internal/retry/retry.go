// Package retry provides a bounded exponential-backoff executor for
// operations that may fail transiently (store writes, gateway calls), plus a
// durable failure recorder for attempts that exhaust their budget.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls the retry loop. MaxRetries is the number of additional
// attempts after the first, so MaxRetries=3 allows at most 4 invocations.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// OnRetry is invoked before each backoff wait with the attempt number
	// that just failed and its error. It must not block.
	OnRetry func(attempt int, err error)
}

// DefaultConfig matches the knobs used by the return workflow.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Result reports the outcome of a retried operation. On exhaustion Success
// is false and Err holds the last error; the executor itself never fails
// loudly - the caller decides whether exhaustion is fatal.
type Result struct {
	Success  bool
	Attempts int
	Err      error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as a deterministic rejection that must not be
// retried. Validation and authorization failures surfaced inside a retried
// closure should be wrapped with this so the backoff budget is not wasted.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do invokes op, retrying on failure with capped exponential backoff until it
// succeeds, the budget is exhausted, a permanent error surfaces, or ctx is
// done.
func Do(ctx context.Context, cfg Config, op func() error) Result {
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return Result{Success: true, Attempts: attempt}
		}

		if IsPermanent(lastErr) {
			return Result{Success: false, Attempts: attempt, Err: errors.Unwrap(lastErr)}
		}

		if attempt > cfg.MaxRetries {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		if err := sleep(ctx, delayFor(cfg, attempt)); err != nil {
			return Result{Success: false, Attempts: attempt, Err: err}
		}
	}

	return Result{Success: false, Attempts: cfg.MaxRetries + 1, Err: lastErr}
}

func delayFor(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
