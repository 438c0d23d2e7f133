/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/acronis/go-validatorkit/internal/enforcement"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/ratelimit"
)

// DefaultRateLimitOperationName is the name of the RPC method that is rate limited by default.
const DefaultRateLimitOperationName = "validate"

// RetryAfterHeaderKey is the response header (metadata) key that contains the number of seconds to wait before retrying.
const RetryAfterHeaderKey = "retry-after"

// RateLimitParams contains data of the rejected call.
type RateLimitParams struct {
	Key                   string
	SecondsToWaitForRetry int64
}

// RateLimitUnaryOnRejectFunc is a function that is called for rejecting gRPC unary request when the rate limit is exceeded.
type RateLimitUnaryOnRejectFunc func(ctx context.Context, req interface{},
	info *grpc.UnaryServerInfo, params RateLimitParams) (interface{}, error)

// RateLimitOption represents a configuration option for the rate limit interceptor.
type RateLimitOption func(*rateLimitOptions)

type rateLimitOptions struct {
	operationName string
	logger        log.FieldLogger
	unaryOnReject RateLimitUnaryOnRejectFunc
}

// WithRateLimitOperationName sets the name of the rate limited RPC method. Empty name keeps the default.
// Unlike the SOAP operation, it's compared case-insensitively with the last segment of the full method name:
// protobuf methods are UpperCamelCase, so "validate" matches "/validator.v1.Validator/Validate".
func WithRateLimitOperationName(name string) RateLimitOption {
	return func(opts *rateLimitOptions) {
		if name != "" {
			opts.operationName = name
		}
	}
}

// WithRateLimitLogger sets the logger that is used when there is no request-scoped logger in the context.
func WithRateLimitLogger(logger log.FieldLogger) RateLimitOption {
	return func(opts *rateLimitOptions) {
		opts.logger = logger
	}
}

// WithRateLimitUnaryOnReject sets the callback for handling rejected unary requests.
func WithRateLimitUnaryOnReject(onReject RateLimitUnaryOnRejectFunc) RateLimitOption {
	return func(opts *rateLimitOptions) {
		opts.unaryOnReject = onReject
	}
}

type rateLimitHandler struct {
	processor     *enforcement.RequestProcessor
	keyGen        *ratelimit.KeyGenerator
	operationName string
	logger        log.FieldLogger
	unaryOnReject RateLimitUnaryOnRejectFunc
}

// RateLimitUnaryInterceptor is a gRPC unary interceptor that enforces the validation rate limit
// (ratelimit.PolicySOAPValidate) for the validation operation. Other methods are not checked.
// Calls without peer information are not checked either.
func RateLimitUnaryInterceptor(checker ratelimit.Checker, keyGen *ratelimit.KeyGenerator, options ...RateLimitOption) func(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	opts := rateLimitOptions{operationName: DefaultRateLimitOperationName}
	for _, option := range options {
		option(&opts)
	}
	if opts.logger == nil {
		opts.logger = log.NewDisabledLogger()
	}
	if opts.unaryOnReject == nil {
		opts.unaryOnReject = DefaultRateLimitUnaryOnReject
	}
	h := &rateLimitHandler{
		processor:     enforcement.NewRequestProcessor(checker),
		keyGen:        keyGen,
		operationName: opts.operationName,
		logger:        opts.logger,
		unaryOnReject: opts.unaryOnReject,
	}
	return h.handleUnary
}

func (h *rateLimitHandler) handleUnary(
	ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (interface{}, error) {
	if !strings.EqualFold(methodName(info.FullMethod), h.operationName) {
		return handler(ctx, req)
	}

	logger := loggerFromContext(ctx, h.logger)

	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		logger.Warn("peer information is missing in gRPC call, rate limit is not applied",
			log.String("grpc_method", info.FullMethod))
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	rh := &rateLimitUnaryRequestHandler{
		ctx:       ctx,
		req:       req,
		info:      info,
		handler:   handler,
		clientReq: grpcClientRequest{remoteAddr: p.Addr.String(), md: md},
		logger:    logger,
		parent:    h,
	}
	err := h.processor.ProcessRequest(rh)
	return rh.result, err
}

// methodName returns the last segment of the full RPC method name ("/package.Service/Method").
func methodName(fullMethod string) string {
	if i := strings.LastIndexByte(fullMethod, '/'); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}

// rateLimitUnaryRequestHandler implements enforcement.RequestHandler for unary requests.
type rateLimitUnaryRequestHandler struct {
	ctx       context.Context
	req       interface{}
	info      *grpc.UnaryServerInfo
	handler   grpc.UnaryHandler
	clientReq grpcClientRequest
	logger    log.FieldLogger
	parent    *rateLimitHandler
	result    interface{}
}

func (u *rateLimitUnaryRequestHandler) GetTarget() (key string, policy ratelimit.Policy, bypass bool) {
	key, bypass = u.parent.keyGen.Key(u.clientReq, ratelimit.PolicySOAPValidate, u.logger)
	return key, ratelimit.PolicySOAPValidate, bypass
}

func (u *rateLimitUnaryRequestHandler) Execute() error {
	var err error
	u.result, err = u.handler(u.ctx, u.req)
	return err
}

func (u *rateLimitUnaryRequestHandler) OnReject(params enforcement.Params) error {
	var err error
	u.result, err = u.parent.unaryOnReject(u.ctx, u.req, u.info, RateLimitParams{
		Key:                   params.Key,
		SecondsToWaitForRetry: params.SecondsToWaitForRetry,
	})
	return err
}

// DefaultRateLimitUnaryOnReject returns ResourceExhausted status with the reject message
// and sets the retry-after response header.
func DefaultRateLimitUnaryOnReject(
	ctx context.Context, _ interface{}, _ *grpc.UnaryServerInfo, params RateLimitParams,
) (interface{}, error) {
	retryAfter := strconv.FormatInt(params.SecondsToWaitForRetry, 10)
	if err := grpc.SetHeader(ctx, metadata.Pairs(RetryAfterHeaderKey, retryAfter)); err != nil {
		if logger := GetLoggerFromContext(ctx); logger != nil {
			logger.Warn("failed to set retry-after header", log.Error(err))
		}
	}
	return nil, status.Error(codes.ResourceExhausted, ratelimit.RejectMessage(params.SecondsToWaitForRetry))
}

// grpcClientRequest implements ratelimit.ClientRequest for gRPC calls.
// Metadata keys are case-insensitive, so the proxy header name may be configured in any case.
type grpcClientRequest struct {
	remoteAddr string
	md         metadata.MD
}

func (r grpcClientRequest) RemoteAddr() string {
	return ratelimit.StripPort(r.remoteAddr)
}

func (r grpcClientRequest) Header(name string) (string, bool) {
	values := r.md.Get(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}
