/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"fmt"
	"runtime"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acronis/go-validatorkit/log"
)

// RecoveryDefaultStackSize is the number of stack trace bytes logged for a panic.
const RecoveryDefaultStackSize = 8192

// InternalError is returned to the client instead of a panic.
var InternalError = status.Error(codes.Internal, "Internal error")

type recoveryInterceptor struct {
	stackSize int
	logger    log.FieldLogger
}

// RecoveryOption configures RecoveryUnaryInterceptor.
type RecoveryOption func(*recoveryInterceptor)

// WithRecoveryStackSize limits the logged stack trace. Zero disables stack logging.
func WithRecoveryStackSize(size int) RecoveryOption {
	return func(ri *recoveryInterceptor) { ri.stackSize = size }
}

// WithRecoveryLogger sets the logger for calls whose context has no logger.
func WithRecoveryLogger(logger log.FieldLogger) RecoveryOption {
	return func(ri *recoveryInterceptor) { ri.logger = logger }
}

// RecoveryUnaryInterceptor turns a panic in a handler into InternalError.
// The panic is logged with the call-scoped logger (see RequestIDUnaryInterceptor).
func RecoveryUnaryInterceptor(options ...RecoveryOption) grpc.UnaryServerInterceptor {
	ri := &recoveryInterceptor{stackSize: RecoveryDefaultStackSize, logger: log.NewDisabledLogger()}
	for _, option := range options {
		option(ri)
	}
	return ri.intercept
}

func (ri *recoveryInterceptor) intercept(
	ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (resp interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			ri.logPanic(loggerFromContext(ctx, ri.logger), info.FullMethod, p)
			resp, err = nil, InternalError
		}
	}()
	return handler(ctx, req)
}

func (ri *recoveryInterceptor) logPanic(logger log.FieldLogger, method string, p interface{}) {
	fields := []log.Field{log.String("grpc_method", method)}
	if ri.stackSize > 0 {
		stack := make([]byte, ri.stackSize)
		fields = append(fields, log.Bytes("stack", stack[:runtime.Stack(stack, false)]))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)
}
