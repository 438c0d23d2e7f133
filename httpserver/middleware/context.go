/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"

	"github.com/acronis/go-validatorkit/log"
)

// ctxKey is parameterized by the stored value type, so each key and its value stay paired.
type ctxKey[T any] struct{ name string }

var (
	requestIDKey         = ctxKey[string]{"request_id"}
	internalRequestIDKey = ctxKey[string]{"int_request_id"}
	loggerKey            = ctxKey[log.FieldLogger]{"logger"}
	rateLimitStateKey    = ctxKey[*RateLimitState]{"rate_limit_state"}
)

func (k ctxKey[T]) with(ctx context.Context, val T) context.Context {
	return context.WithValue(ctx, k, val)
}

func (k ctxKey[T]) from(ctx context.Context) T {
	val, _ := ctx.Value(k).(T)
	return val
}

// NewContextWithRequestID creates a new context with external request id.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return requestIDKey.with(ctx, requestID)
}

// GetRequestIDFromContext extracts external request id from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	return requestIDKey.from(ctx)
}

// NewContextWithInternalRequestID creates a new context with internal request id.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return internalRequestIDKey.with(ctx, internalRequestID)
}

// GetInternalRequestIDFromContext extracts internal request id from the context.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return internalRequestIDKey.from(ctx)
}

// NewContextWithLogger creates a new context with logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return loggerKey.with(ctx, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return loggerKey.from(ctx)
}

// RateLimitState marks a request that has already been checked by the admission engine,
// so a request passing the rate limiting middleware twice is counted once.
type RateLimitState struct {
	Evaluated bool
}

// NewContextWithRateLimitState creates a new context with rate limiting state.
func NewContextWithRateLimitState(ctx context.Context, state *RateLimitState) context.Context {
	return rateLimitStateKey.with(ctx, state)
}

// GetRateLimitStateFromContext extracts rate limiting state from the context.
func GetRateLimitStateFromContext(ctx context.Context) *RateLimitState {
	return rateLimitStateKey.from(ctx)
}
