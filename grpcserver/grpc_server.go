/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package grpcserver

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/acronis/go-validatorkit/grpcserver/interceptor"
	"github.com/acronis/go-validatorkit/internal/serveunit"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/ratelimit"
	"github.com/acronis/go-validatorkit/service"
)

// Option represents a functional option for configuring GRPCServer.
type Option func(*serverOptions)

type serverOptions struct {
	unaryInterceptors []grpc.UnaryServerInterceptor
	rateLimitChecker  ratelimit.Checker
	rateLimitKeyGen   *ratelimit.KeyGenerator
	rateLimitOptions  []interceptor.RateLimitOption
}

// WithUnaryInterceptors adds unary interceptors to the server.
// They are called after the built-in ones.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(o *serverOptions) {
		o.unaryInterceptors = append(o.unaryInterceptors, interceptors...)
	}
}

// WithRateLimit enables the validation rate limit for the RPC method configured in Config.RateLimit.Operation.
func WithRateLimit(checker ratelimit.Checker, keyGen *ratelimit.KeyGenerator, options ...interceptor.RateLimitOption) Option {
	return func(o *serverOptions) {
		o.rateLimitChecker = checker
		o.rateLimitKeyGen = keyGen
		o.rateLimitOptions = options
	}
}

// GRPCServer serves the Validator gRPC service. It implements service.Unit.
type GRPCServer struct {
	GRPCServer *grpc.Server
	Logger     log.FieldLogger

	shutdownTimeout time.Duration
	runner          *serveunit.Runner
}

var _ service.Unit = (*GRPCServer)(nil)

// New creates a new GRPCServer with request ID, panic recovery and (optionally) validation rate limit interceptors.
// Services should be registered in GRPCServer.GRPCServer before starting.
func New(cfg *Config, logger log.FieldLogger, options ...Option) (*GRPCServer, error) {
	opts := &serverOptions{}
	for _, opt := range options {
		opt(opts)
	}
	srv := grpc.NewServer(append(serverOptionsFromConfig(cfg),
		grpc.ChainUnaryInterceptor(buildUnaryInterceptors(cfg, logger, opts)...))...)
	return &GRPCServer{
		GRPCServer:      srv,
		Logger:          logger,
		shutdownTimeout: cfg.Timeouts.Shutdown.Duration(),
		runner:          serveunit.New("gRPC server", cfg.Address, logger, srv.Serve),
	}, nil
}

func serverOptionsFromConfig(cfg *Config) []grpc.ServerOption {
	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.Keepalive.Time.Duration(),
			Timeout: cfg.Keepalive.Timeout.Duration(),
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.Keepalive.MinTime.Duration(),
			PermitWithoutStream: true,
		}),
	}
	if limit := cfg.Limits.MaxConcurrentStreams; limit > 0 {
		serverOpts = append(serverOpts, grpc.MaxConcurrentStreams(limit))
	}
	if size := int(cfg.Limits.MaxRecvMessageSize); size > 0 {
		serverOpts = append(serverOpts, grpc.MaxRecvMsgSize(size))
	}
	if size := int(cfg.Limits.MaxSendMessageSize); size > 0 {
		serverOpts = append(serverOpts, grpc.MaxSendMsgSize(size))
	}
	return serverOpts
}

// buildUnaryInterceptors orders interceptors so that the rate limit and custom ones
// see the request ids and a panic in any of them is recovered.
func buildUnaryInterceptors(cfg *Config, logger log.FieldLogger, opts *serverOptions) []grpc.UnaryServerInterceptor {
	interceptors := []grpc.UnaryServerInterceptor{
		interceptor.RequestIDUnaryInterceptor(interceptor.WithRequestIDLogger(logger)),
		interceptor.RecoveryUnaryInterceptor(interceptor.WithRecoveryLogger(logger)),
	}
	if opts.rateLimitChecker != nil {
		keyGen := opts.rateLimitKeyGen
		if keyGen == nil {
			keyGen = ratelimit.NewKeyGenerator(ratelimit.KeyGeneratorOpts{})
		}
		rateLimitOpts := append([]interceptor.RateLimitOption{
			interceptor.WithRateLimitLogger(logger),
			interceptor.WithRateLimitOperationName(cfg.RateLimit.Operation),
		}, opts.rateLimitOptions...)
		interceptors = append(interceptors,
			interceptor.RateLimitUnaryInterceptor(opts.rateLimitChecker, keyGen, rateLimitOpts...))
	}
	return append(interceptors, opts.unaryInterceptors...)
}

// Start serves calls until Stop is called. Listen and serve errors are sent to fatalError.
func (s *GRPCServer) Start(fatalError chan<- error) {
	s.runner.Run(fatalError)
}

// Stop stops the server. Gracefully means waiting for in-flight calls, but not longer than the shutdown timeout.
func (s *GRPCServer) Stop(gracefully bool) error {
	defer s.runner.Wait()

	if !gracefully {
		s.Logger.Info("stopping gRPC server...")
		s.GRPCServer.Stop()
		return nil
	}

	s.Logger.Info("stopping gRPC server gracefully...", log.Duration("timeout", s.shutdownTimeout))
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.GRPCServer.GracefulStop()
	}()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
		s.Logger.Info("gRPC server gracefully stopped")
	case <-timer.C:
		s.Logger.Warn("gRPC server graceful stop timed out, stopping forcefully...")
		s.GRPCServer.Stop()
	}
	return nil
}

// Address returns the address the server listens on. The real port is known after Start if 0 was configured.
func (s *GRPCServer) Address() string {
	return s.runner.Address()
}
