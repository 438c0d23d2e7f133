/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-validatorkit/httpserver/middleware"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/ratelimit"
	"github.com/acronis/go-validatorkit/restapi"
)

// DefaultSOAPPath is the default URL path of the SOAP endpoint.
const DefaultSOAPPath = "/soap"

// systemEndpoints is a list of endpoints which are not involved in in-flight requests limiting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// RateLimitOpts represents options of the validation rate limit applied by the router.
type RateLimitOpts struct {
	// Checker makes admission decisions. The rate limit middlewares are not added if it's nil.
	Checker ratelimit.Checker

	// KeyGenerator builds client keys. A generator without proxy header and exclusions is used if it's nil.
	KeyGenerator *ratelimit.KeyGenerator

	// Routes maps UI upload and REST API requests to policies. ratelimit.DefaultRoutes is used if it's nil.
	Routes *ratelimit.RouteTable
}

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// ErrorDomain is used for error response formatting.
	ErrorDomain string

	// RootMiddlewares are applied after the built-in ones.
	RootMiddlewares []func(http.Handler) http.Handler

	HealthCheck HealthCheck

	// MetricsHandler serves /metrics. promhttp.Handler is used if it's nil.
	MetricsHandler http.Handler

	// APIRoutes registers UI upload and REST API handlers.
	APIRoutes func(router chi.Router)

	// SOAPHandler handles SOAP requests posted to SOAPPath. The endpoint is not registered if it's nil.
	SOAPHandler http.Handler

	// SOAPPath is DefaultSOAPPath if it's empty.
	SOAPPath string

	RateLimit RateLimitOpts
}

// NewRouter creates a new chi.Router with request ID, recovery, limits and validation rate limit middlewares.
func NewRouter(cfg *Config, logger log.FieldLogger, opts RouterOpts) (chi.Router, error) {
	router := chi.NewRouter()
	if err := applyDefaultMiddlewaresToRouter(router, cfg, logger, opts); err != nil {
		return nil, err
	}
	configureRouter(router, cfg, logger, opts)
	return router, nil
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func configureRouter(router chi.Router, cfg *Config, logger log.FieldLogger, opts RouterOpts) {
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))

	if opts.APIRoutes != nil {
		router.Group(opts.APIRoutes)
	}

	if opts.SOAPHandler != nil {
		soapPath := opts.SOAPPath
		if soapPath == "" {
			soapPath = DefaultSOAPPath
		}
		soapRouter := router
		if opts.RateLimit.Checker != nil {
			soapRouter = router.With(middleware.SOAPRateLimit(opts.RateLimit.Checker, rateLimitKeyGenerator(opts),
				middleware.SOAPRateLimitOpts{OperationName: cfg.RateLimit.SOAP.Operation, Logger: logger}))
		}
		soapRouter.Method(http.MethodPost, soapPath, opts.SOAPHandler)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeNotFound, restapi.ErrMessageNotFound)
		restapi.RespondError(rw, http.StatusNotFound, apiErr, requestLogger(r, logger))
	})

	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		apiErr := restapi.NewError(opts.ErrorDomain, restapi.ErrCodeMethodNotAllowed, restapi.ErrMessageMethodNotAllowed)
		restapi.RespondError(rw, http.StatusMethodNotAllowed, apiErr, requestLogger(r, logger))
	})
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func applyDefaultMiddlewaresToRouter(router chi.Router, cfg *Config, logger log.FieldLogger, opts RouterOpts) error {
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.Recovery())

	if cfg.Limits.MaxConcurrentRequests > 0 {
		inFlightLimitMw, err := middleware.InFlightLimitWithOpts(cfg.Limits.MaxConcurrentRequests, opts.ErrorDomain,
			middleware.InFlightLimitOpts{ExcludedEndpoints: systemEndpoints})
		if err != nil {
			return fmt.Errorf("create in-flight limit middleware: %w", err)
		}
		router.Use(inFlightLimitMw)
	}

	if cfg.Limits.MaxRequestBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(cfg.Limits.MaxRequestBodySize, opts.ErrorDomain))
	}

	if opts.RateLimit.Checker != nil {
		router.Use(middleware.RateLimitWithOpts(opts.RateLimit.Checker, rateLimitKeyGenerator(opts), opts.RateLimit.Routes,
			middleware.RateLimitOpts{ResponseStatusCode: cfg.RateLimit.ResponseStatusCode, Logger: logger}))
	}

	router.Use(opts.RootMiddlewares...)
	return nil
}

// nolint // hugeParam: opts is heavy, it's ok in this case.
func rateLimitKeyGenerator(opts RouterOpts) *ratelimit.KeyGenerator {
	if opts.RateLimit.KeyGenerator != nil {
		return opts.RateLimit.KeyGenerator
	}
	return ratelimit.NewKeyGenerator(ratelimit.KeyGeneratorOpts{})
}

func requestLogger(r *http.Request, logger log.FieldLogger) log.FieldLogger {
	if reqLogger := middleware.GetLoggerFromContext(r.Context()); reqLogger != nil {
		return reqLogger
	}
	return logger
}
