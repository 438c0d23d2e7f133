/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"

	"github.com/acronis/go-validatorkit/log"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts represents an options for RequestID middleware.
type RequestIDOpts struct {
	// GenerateID is called when the request has no X-Request-ID header.
	GenerateID func() string

	// GenerateInternalID is called for every request.
	GenerateInternalID func() string

	// Logger is a base logger. If it's set, a request-scoped logger with both ids
	// is put into the request context (see GetLoggerFromContext).
	Logger log.FieldLogger
}

// RequestID returns a middleware that tags every request with two ids.
// The external one is taken from X-Request-ID (or generated when the header is empty),
// the internal one is always generated. Both go to the request context and to the response headers.
func RequestID(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{Logger: logger})
}

// RequestIDWithOpts is a more configurable version of RequestID middleware.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	genExternal := opts.GenerateID
	if genExternal == nil {
		genExternal = func() string { return xid.New().String() }
	}
	genInternal := opts.GenerateInternalID
	if genInternal == nil {
		genInternal = func() string { return xid.New().String() }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			extID := r.Header.Get(headerRequestID)
			if extID == "" {
				extID = genExternal()
			}
			intID := genInternal()

			rw.Header().Set(headerRequestID, extID)
			rw.Header().Set(headerInternalRequestID, intID)

			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), extID), intID)
			if opts.Logger != nil {
				ctx = NewContextWithLogger(ctx, opts.Logger.With(
					log.String("request_id", extID), log.String("int_request_id", intID)))
			}
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
