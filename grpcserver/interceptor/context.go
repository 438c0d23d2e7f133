/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"

	"github.com/acronis/go-validatorkit/log"
)

type requestIDsCtxKey struct{}

type loggerCtxKey struct{}

// requestIDs identify a single gRPC call. External comes from the client (or is generated),
// internal is always generated by the server.
type requestIDs struct {
	external string
	internal string
}

func requestIDsFromContext(ctx context.Context) requestIDs {
	ids, _ := ctx.Value(requestIDsCtxKey{}).(requestIDs)
	return ids
}

// NewContextWithRequestID creates a new context with external request id.
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	ids := requestIDsFromContext(ctx)
	ids.external = requestID
	return context.WithValue(ctx, requestIDsCtxKey{}, ids)
}

// GetRequestIDFromContext extracts external request id from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	return requestIDsFromContext(ctx).external
}

// NewContextWithInternalRequestID creates a new context with internal request id.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	ids := requestIDsFromContext(ctx)
	ids.internal = internalRequestID
	return context.WithValue(ctx, requestIDsCtxKey{}, ids)
}

// GetInternalRequestIDFromContext extracts internal request id from the context.
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return requestIDsFromContext(ctx).internal
}

// NewContextWithLogger creates a new context with the call-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// GetLoggerFromContext returns the call-scoped logger or nil.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	logger, _ := ctx.Value(loggerCtxKey{}).(log.FieldLogger)
	return logger
}

func loggerFromContext(ctx context.Context, fallback log.FieldLogger) log.FieldLogger {
	if logger := GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return fallback
}
