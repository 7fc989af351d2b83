// Package retry wraps github.com/cenkalti/backoff/v5 in the four named
// policies the grading and rule-upgrade pipelines use for every external
// call (spec.md §5).
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is one named retry configuration: exponential backoff with a
// per-attempt timeout and a maximum attempt count.
type Policy struct {
	Name              string
	InitialInterval   time.Duration
	BackoffCoefficient float64
	MaximumInterval   time.Duration
	MaximumAttempts   uint
	PerAttemptTimeout time.Duration // 0 = no per-call timeout
}

// Default is the general-purpose policy for calls with no more specific
// failure domain (spec.md §5: 1s, 2.0, 60s, 3 attempts, no timeout).
var Default = Policy{
	Name:               "DEFAULT",
	InitialInterval:    1 * time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    60 * time.Second,
	MaximumAttempts:    3,
}

// LLMAPI is used for scoring-service calls (spec.md §5: 2s, 2.0, 120s,
// 5 attempts, 300s per-attempt timeout; non-retryable on validation errors).
var LLMAPI = Policy{
	Name:               "LLM_API",
	InitialInterval:    2 * time.Second,
	BackoffCoefficient: 2.0,
	MaximumInterval:    120 * time.Second,
	MaximumAttempts:    5,
	PerAttemptTimeout:  300 * time.Second,
}

// FastFail is used where a single quick attempt is preferable to a
// lingering retry loop (spec.md §5: 0.5s, 1.0, 1s, 1 attempt, 30s timeout).
var FastFail = Policy{
	Name:               "FAST_FAIL",
	InitialInterval:    500 * time.Millisecond,
	BackoffCoefficient: 1.0,
	MaximumInterval:    1 * time.Second,
	MaximumAttempts:    1,
	PerAttemptTimeout:  30 * time.Second,
}

// Persistence is used for database/storage writes (spec.md §5: 0.5s, 1.5,
// 10s, 5 attempts, 60s per-attempt timeout).
var Persistence = Policy{
	Name:               "PERSISTENCE",
	InitialInterval:    500 * time.Millisecond,
	BackoffCoefficient: 1.5,
	MaximumInterval:    10 * time.Second,
	MaximumAttempts:    5,
	PerAttemptTimeout:  60 * time.Second,
}

// NonRetryable marks an error class that must abort immediately instead of
// being retried, regardless of attempts remaining (spec.md §5 "non-retryable
// error classes abort immediately").
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.BackoffCoefficient
	b.MaxInterval = p.MaximumInterval
	return b
}

// Do runs fn under the policy's backoff/attempt-count/per-attempt-timeout
// rules. fn should wrap any error it knows is non-retryable with
// NonRetryable. Do returns the last error on exhaustion, preserving the
// original error via errors.Unwrap.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	op := func() (struct{}, error) {
		callCtx := ctx
		var cancel context.CancelFunc
		if p.PerAttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.PerAttemptTimeout)
			defer cancel()
		}
		return struct{}{}, fn(callCtx)
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaximumAttempts),
	}

	_, err := backoff.Retry(ctx, op, opts...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Unwrap()
		}
		return err
	}
	return nil
}
