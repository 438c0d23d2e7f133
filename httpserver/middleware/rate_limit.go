/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"

	"github.com/acronis/go-validatorkit/internal/enforcement"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/ratelimit"
)

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting the request.
type RateLimitParams struct {
	Key                   string
	Policy                ratelimit.Policy
	SecondsToWaitForRetry int64
	ResponseStatusCode    int
}

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, logger log.FieldLogger)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// ResponseStatusCode is used for rejected requests. 429 (Too Many Requests) is used if it's zero.
	ResponseStatusCode int

	// OnReject is called when the request is rejected. DefaultRateLimitOnReject is used if it's nil.
	OnReject RateLimitOnRejectFunc

	// Logger is used when there is no request-scoped logger in the context.
	Logger log.FieldLogger
}

type rateLimitHandler struct {
	next           http.Handler
	processor      *enforcement.RequestProcessor
	keyGen         *ratelimit.KeyGenerator
	routes         *ratelimit.RouteTable
	respStatusCode int
	onReject       RateLimitOnRejectFunc
	logger         log.FieldLogger
}

// RateLimit is a middleware that enforces validation rate limits for UI upload and REST API requests.
// The policy is resolved by the route table (ratelimit.DefaultRoutes is used if routes is nil),
// requests that don't match any route are passed through without any check.
func RateLimit(
	checker ratelimit.Checker, keyGen *ratelimit.KeyGenerator, routes *ratelimit.RouteTable,
) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(checker, keyGen, routes, RateLimitOpts{})
}

// RateLimitWithOpts is a more configurable version of RateLimit middleware.
func RateLimitWithOpts(
	checker ratelimit.Checker, keyGen *ratelimit.KeyGenerator, routes *ratelimit.RouteTable, opts RateLimitOpts,
) func(next http.Handler) http.Handler {
	if routes == nil {
		routes = ratelimit.NewRouteTable(ratelimit.DefaultRoutes())
	}
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusTooManyRequests
	}
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultRateLimitOnReject
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	processor := enforcement.NewRequestProcessor(checker)
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:           next,
			processor:      processor,
			keyGen:         keyGen,
			routes:         routes,
			respStatusCode: respStatusCode,
			onReject:       onReject,
			logger:         logger,
		}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	policy, found := h.routes.Lookup(r)
	if !found {
		h.next.ServeHTTP(rw, r)
		return
	}

	var evaluated bool
	if r, evaluated = markRateLimitEvaluated(r); evaluated {
		h.next.ServeHTTP(rw, r)
		return
	}

	requestHandler := &rateLimitRequestHandler{rw: rw, r: r, policy: policy, parent: h}
	_ = h.processor.ProcessRequest(requestHandler) // Error is always nil, as it is handled in the rateLimitRequestHandler methods.
}

// markRateLimitEvaluated marks the request as checked by the admission engine.
// The second result is true if the request has already been marked before.
func markRateLimitEvaluated(r *http.Request) (*http.Request, bool) {
	state := GetRateLimitStateFromContext(r.Context())
	if state == nil {
		state = &RateLimitState{}
		r = r.WithContext(NewContextWithRateLimitState(r.Context(), state))
	}
	if state.Evaluated {
		return r, true
	}
	state.Evaluated = true
	return r, false
}

func (h *rateLimitHandler) requestLogger(r *http.Request) log.FieldLogger {
	if logger := GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}

// rateLimitRequestHandler implements enforcement.RequestHandler for HTTP requests.
type rateLimitRequestHandler struct {
	rw     http.ResponseWriter
	r      *http.Request
	policy ratelimit.Policy
	parent *rateLimitHandler
}

func (h *rateLimitRequestHandler) GetTarget() (key string, policy ratelimit.Policy, bypass bool) {
	key, bypass = h.parent.keyGen.Key(ratelimit.NewHTTPClientRequest(h.r), h.policy, h.parent.requestLogger(h.r))
	return key, h.policy, bypass
}

func (h *rateLimitRequestHandler) Execute() error {
	h.parent.next.ServeHTTP(h.rw, h.r)
	return nil
}

func (h *rateLimitRequestHandler) OnReject(params enforcement.Params) error {
	h.parent.onReject(h.rw, h.r, RateLimitParams{
		Key:                   params.Key,
		Policy:                params.Policy,
		SecondsToWaitForRetry: params.SecondsToWaitForRetry,
		ResponseStatusCode:    h.parent.respStatusCode,
	}, h.parent.requestLogger(h.r))
	return nil
}

// DefaultRateLimitOnReject responds with a plain text message and Retry-After header when the rate limit is exceeded.
func DefaultRateLimitOnReject(rw http.ResponseWriter, r *http.Request, params RateLimitParams, logger log.FieldLogger) {
	rw.Header().Set("Retry-After", strconv.FormatInt(params.SecondsToWaitForRetry, 10))
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(params.ResponseStatusCode)
	if _, err := rw.Write([]byte(ratelimit.RejectMessage(params.SecondsToWaitForRetry))); err != nil && logger != nil {
		logger.Error("error while sending rate limit response",
			log.Error(err), log.String(ratelimit.LogFieldKey, params.Key), log.String("user_agent", r.UserAgent()))
	}
}
