/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package serveunit runs a network server (HTTP or gRPC) as a part of service.Unit:
// it owns the TCP listener, logs the lifecycle and lets Stop wait until serving is finished.
package serveunit

import (
	"errors"
	"net"
	"net/http"

	"go.uber.org/atomic"

	"github.com/acronis/go-validatorkit/log"
)

// ServeFunc serves connections accepted on the listener until the server is closed.
// Both (*http.Server).Serve and (*grpc.Server).Serve match it.
type ServeFunc func(ln net.Listener) error

// Runner listens on the configured address and calls ServeFunc.
type Runner struct {
	name   string
	logger log.FieldLogger
	serve  ServeFunc

	address atomic.String
	started atomic.Bool
	done    chan struct{}
}

// New creates a Runner. name is used in log messages, e.g. "gRPC server".
func New(name, address string, logger log.FieldLogger, serve ServeFunc) *Runner {
	r := &Runner{name: name, logger: logger, serve: serve, done: make(chan struct{})}
	r.address.Store(address)
	return r
}

// Run blocks until the server is closed. Listen and serve errors go to fatalError.
// fields are added to the lifecycle log entries.
func (r *Runner) Run(fatalError chan<- error, fields ...log.Field) {
	r.started.Store(true)
	defer close(r.done)

	logger := r.logger.With(append([]log.Field{log.String("address", r.Address())}, fields...)...)
	logger.Info("starting " + r.name + "...")

	ln, err := net.Listen("tcp", r.Address())
	if err != nil {
		logger.Error(r.name+" error", log.Error(err))
		fatalError <- err
		return
	}
	r.address.Store(ln.Addr().String())

	// gRPC returns nil after Stop, HTTP returns http.ErrServerClosed.
	if err = r.serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(r.name+" error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info(r.name + " closed")
}

// Wait blocks until Run returns. It returns immediately if Run was not called.
func (r *Runner) Wait() {
	if r.started.Load() {
		<-r.done
	}
}

// Address returns the listening address. It's known after Run starts if the configured port was 0.
func (r *Runner) Address() string {
	return r.address.Load()
}
