/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/interop/grpc_testing"

	"github.com/acronis/go-validatorkit/log/logtest"
)

type unaryCallFunc func(ctx context.Context, req *grpc_testing.SimpleRequest) (*grpc_testing.SimpleResponse, error)

// testService records the context of the last call so tests can inspect what interceptors put there.
type testService struct {
	grpc_testing.UnimplementedTestServiceServer

	calls     atomic.Int32
	lastCtx   atomic.Value
	unaryCall atomic.Value
}

func (s *testService) track(ctx context.Context) {
	s.calls.Inc()
	s.lastCtx.Store(ctx)
}

func (s *testService) UnaryCall(ctx context.Context, req *grpc_testing.SimpleRequest) (*grpc_testing.SimpleResponse, error) {
	s.track(ctx)
	if fn, ok := s.unaryCall.Load().(unaryCallFunc); ok {
		return fn(ctx, req)
	}
	return &grpc_testing.SimpleResponse{Payload: &grpc_testing.Payload{Body: []byte("test")}}, nil
}

func (s *testService) EmptyCall(ctx context.Context, _ *grpc_testing.Empty) (*grpc_testing.Empty, error) {
	s.track(ctx)
	return &grpc_testing.Empty{}, nil
}

func (s *testService) SwitchUnaryCallHandler(fn unaryCallFunc) {
	s.unaryCall.Store(fn)
}

func (s *testService) LastContext() context.Context {
	ctx, _ := s.lastCtx.Load().(context.Context)
	return ctx
}

func (s *testService) Calls() int {
	return int(s.calls.Load())
}

// startTestService serves testService on a loopback port. Peers are seen as 127.0.0.1 by the server.
func startTestService(
	serverOpts []grpc.ServerOption, dialOpts []grpc.DialOption,
) (*testService, grpc_testing.TestServiceClient, func() error, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listen: %w", err)
	}

	svc := &testService{}
	srv := grpc.NewServer(serverOpts...)
	grpc_testing.RegisterTestServiceServer(srv, svc)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	conn, err := grpc.NewClient(ln.Addr().String(), dialOpts...)
	if err != nil {
		srv.Stop()
		return nil, nil, nil, errors.Join(fmt.Errorf("dial: %w", err), <-served)
	}

	closeFn := func() error {
		closeErr := conn.Close()
		srv.GracefulStop()
		return errors.Join(closeErr, <-served)
	}
	return svc, grpc_testing.NewTestServiceClient(conn), closeFn, nil
}

func getLogFieldAsString(logEntry logtest.RecordedEntry, key string) string {
	val, _ := logEntry.StringField(key)
	return val
}
