/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/acronis/go-validatorkit/log"
)

// Metadata keys are lowercase in gRPC, so they match X-Request-ID and X-Int-Request-ID of the HTTP server.
const (
	headerRequestIDKey         = "x-request-id"
	headerRequestInternalIDKey = "x-int-request-id"
)

type requestIDInterceptor struct {
	newExternalID func() string
	newInternalID func() string
	logger        log.FieldLogger
}

// RequestIDOption configures RequestIDUnaryInterceptor.
type RequestIDOption func(*requestIDInterceptor)

// WithRequestIDGenerator replaces xid for the ids of calls that come without x-request-id.
func WithRequestIDGenerator(generator func() string) RequestIDOption {
	return func(ri *requestIDInterceptor) { ri.newExternalID = generator }
}

// WithInternalRequestIDGenerator replaces xid for internal ids.
func WithInternalRequestIDGenerator(generator func() string) RequestIDOption {
	return func(ri *requestIDInterceptor) { ri.newInternalID = generator }
}

// WithRequestIDLogger makes the interceptor put a logger with request_id and int_request_id fields
// into the call context. Later interceptors and handlers get it with GetLoggerFromContext.
func WithRequestIDLogger(logger log.FieldLogger) RequestIDOption {
	return func(ri *requestIDInterceptor) { ri.logger = logger }
}

// RequestIDUnaryInterceptor takes the request id from x-request-id metadata or generates it,
// generates the internal one, and returns both in the response header.
func RequestIDUnaryInterceptor(options ...RequestIDOption) grpc.UnaryServerInterceptor {
	generate := func() string { return xid.New().String() }
	ri := &requestIDInterceptor{newExternalID: generate, newInternalID: generate}
	for _, option := range options {
		option(ri)
	}
	return ri.intercept
}

func (ri *requestIDInterceptor) intercept(
	ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (interface{}, error) {
	ids := requestIDs{external: incomingMetadataValue(ctx, headerRequestIDKey), internal: ri.newInternalID()}
	if ids.external == "" {
		ids.external = ri.newExternalID()
	}

	header := metadata.Pairs(headerRequestIDKey, ids.external, headerRequestInternalIDKey, ids.internal)
	if err := grpc.SetHeader(ctx, header); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, requestIDsCtxKey{}, ids)
	if ri.logger != nil {
		ctx = NewContextWithLogger(ctx, ri.logger.With(
			log.String("request_id", ids.external), log.String("int_request_id", ids.internal)))
	}
	return handler(ctx, req)
}

func incomingMetadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) != 0 {
		return vals[0]
	}
	return ""
}
