/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry provides backoff policies and a retry loop that respects the delay requested by a server
// (e.g. Retry-After of a rejected validation request).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// RetryAfterError wraps an error for which the server has specified the time to wait before the next attempt.
type RetryAfterError struct {
	Inner error
	Wait  time.Duration
}

// NewRetryAfterError creates a new RetryAfterError.
func NewRetryAfterError(err error, wait time.Duration) *RetryAfterError {
	return &RetryAfterError{Inner: err, Wait: wait}
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %s", e.Wait, e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryAfterError) Unwrap() error {
	return e.Inner
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
// If fn returns *RetryAfterError, the next attempt is made not earlier than the requested wait,
// but the policy still decides when to stop.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	hinted := &retryAfterBackOff{delegate: p.NewBackOff()}
	bctx := backoff.WithContext(hinted, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		hinted.wait = 0
		if err == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		var retryAfterErr *RetryAfterError
		if errors.As(err, &retryAfterErr) {
			hinted.wait = retryAfterErr.Wait
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

type retryAfterBackOff struct {
	delegate backoff.BackOff
	wait     time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.delegate.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.wait > next {
		return b.wait
	}
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.wait = 0
	b.delegate.Reset()
}

// PolicyFunc adapts an ordinary function to Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// limitAttempts caps bf with maxAttempts retries. Non-positive maxAttempts means no cap.
func limitAttempts(bf backoff.BackOff, maxAttempts int) backoff.BackOff {
	if maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(maxAttempts))
	}
	bf.Reset()
	return bf
}

// ExponentialBackoffPolicy makes up to MaxAttempts retries, each delay is Multiplier times longer than the previous one.
// Elapsed time is not limited.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy with backoff.DefaultMultiplier.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetryAttempts int) ExponentialBackoffPolicy {
	return NewExponentialBackoffPolicyWithMultiplier(initialInterval, backoff.DefaultMultiplier, maxRetryAttempts)
}

// NewExponentialBackoffPolicyWithMultiplier returns an exponential backoff policy with a custom multiplier.
func NewExponentialBackoffPolicyWithMultiplier(
	initialInterval time.Duration, multiplier float64, maxRetryAttempts int,
) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, Multiplier: multiplier, MaxAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	return limitAttempts(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMultiplier(p.Multiplier),
		backoff.WithMaxElapsedTime(0),
	), p.MaxAttempts)
}

// ConstantBackoffPolicy makes up to MaxAttempts retries with the same delay.
type ConstantBackoffPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxAttempts: maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return limitAttempts(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts)
}
