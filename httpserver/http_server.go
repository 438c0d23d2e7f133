/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-validatorkit/internal/serveunit"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/service"
)

// Opts represents options for creating HTTPServer.
type Opts = RouterOpts

// HTTPServer serves UI uploads, REST API and SOAP requests. It implements service.Unit.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	runner *serveunit.Runner
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates a new HTTPServer serving UI upload, REST API and SOAP endpoints
// behind the validation rate limit, together with /metrics and /healthz.
func New(cfg *Config, logger log.FieldLogger, opts Opts) (*HTTPServer, error) { //nolint // hugeParam: opts is heavy, it's ok in this case.
	router, err := NewRouter(cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              cfg.Address,
		WriteTimeout:      cfg.Timeouts.Write.Duration(),
		ReadTimeout:       cfg.Timeouts.Read.Duration(),
		ReadHeaderTimeout: cfg.Timeouts.ReadHeader.Duration(),
		IdleTimeout:       cfg.Timeouts.Idle.Duration(),
		Handler:           router,
	}
	return &HTTPServer{
		HTTPServer:      srv,
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown.Duration(),
		runner:          serveunit.New("application HTTP server", cfg.Address, logger, srv.Serve),
	}, nil
}

// Start serves requests until Stop is called. Listen and serve errors are sent to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	s.runner.Run(fatalError,
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
}

// Stop closes the server. Gracefully means waiting (up to ShutdownTimeout) for in-flight validations.
func (s *HTTPServer) Stop(gracefully bool) error {
	var err error
	if gracefully {
		s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		s.Logger.Info("closing application HTTP server...")
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("application HTTP server stopping error", log.Error(err), log.Bool("gracefully", gracefully))
		return err
	}
	s.runner.Wait()
	return nil
}

// Address returns the address the server listens on. The real port is known after Start if 0 was configured.
func (s *HTTPServer) Address() string {
	return s.runner.Address()
}

// URL returns the base URL of the server.
func (s *HTTPServer) URL() string {
	return "http://" + s.Address()
}
