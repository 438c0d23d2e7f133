/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an HTTP server that exposes pprof endpoints under /debug.
// It's helpful for investigating the memory footprint of the client buckets store under real load.
package profserver

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-validatorkit/httpserver/middleware"
	"github.com/acronis/go-validatorkit/internal/serveunit"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/service"
)

// ProfServer serves pprof endpoints under /debug. It implements service.Unit.
type ProfServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	BlockProfileRate     int
	MutexProfileFraction int

	runner *serveunit.Runner
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new ProfServer.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	router := chi.NewRouter()
	router.Use(middleware.RequestID(logger), middleware.Recovery())
	router.Mount("/debug", chimiddleware.Profiler())

	srv := &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: time.Second * 5}
	return &ProfServer{
		HTTPServer:           srv,
		Logger:               logger,
		BlockProfileRate:     cfg.BlockProfileRate,
		MutexProfileFraction: cfg.MutexProfileFraction,
		runner:               serveunit.New("profiling HTTP server", cfg.Address, logger, srv.Serve),
	}
}

// Start enables block and mutex profiling if configured and serves requests until Stop is called.
func (s *ProfServer) Start(fatalError chan<- error) {
	if s.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(s.BlockProfileRate)
	}
	if s.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(s.MutexProfileFraction)
	}
	s.runner.Run(fatalError,
		log.Int("block_profile_rate", s.BlockProfileRate),
		log.Int("mutex_profile_fraction", s.MutexProfileFraction),
	)
}

// Stop closes the server. Profiling requests are never waited for.
func (s *ProfServer) Stop(bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	s.runner.Wait()
	return nil
}

// Address returns the address the server listens on.
func (s *ProfServer) Address() string {
	return s.runner.Address()
}

// URL returns the base URL of the server.
func (s *ProfServer) URL() string {
	return "http://" + s.Address()
}
