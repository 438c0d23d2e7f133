/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType creates a new context with request type (e.g. "validate" or "validateMultiple").
// It's added to the log entries of LoggingRoundTripper.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ctxKeyRequestType).(string)
	return value
}

// NewContextWithIdempotentHint returns a derived context that carries an "idempotent request" hint.
// Validation is side-effect free, so callers may mark validation POST requests as idempotent
// to let DefaultCheckRetry retry them on network errors and 5xx responses.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from context.
// Returns false when the key is not present.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	value, _ := ctx.Value(ctxKeyIdempotentHint).(bool)
	return value
}
