/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"

	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/restapi"
)

// InFlightLimitErrCode is the error code that is used in the response when the in-flight limit is exceeded.
const InFlightLimitErrCode = "tooManyInFlightRequests"

// InFlightLimitOpts represents options for the InFlightLimitWithOpts middleware.
type InFlightLimitOpts struct {
	// ExcludedEndpoints are URL paths that are never limited (e.g. /metrics and /healthz).
	ExcludedEndpoints []string
}

type inFlightLimitHandler struct {
	next        http.Handler
	slots       chan struct{}
	errorDomain string
	excluded    map[string]struct{}
}

// InFlightLimit is a middleware that limits the number of concurrently processed requests.
// Requests exceeding the limit are rejected with 503 without waiting.
func InFlightLimit(limit int, errDomain string) (func(next http.Handler) http.Handler, error) {
	return InFlightLimitWithOpts(limit, errDomain, InFlightLimitOpts{})
}

// InFlightLimitWithOpts is a configurable version of InFlightLimit.
func InFlightLimitWithOpts(limit int, errDomain string, opts InFlightLimitOpts) (func(next http.Handler) http.Handler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit should be positive, got %d", limit)
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, endpoint := range opts.ExcludedEndpoints {
		excluded[endpoint] = struct{}{}
	}
	slots := make(chan struct{}, limit)
	return func(next http.Handler) http.Handler {
		return &inFlightLimitHandler{next: next, slots: slots, errorDomain: errDomain, excluded: excluded}
	}, nil
}

func (h *inFlightLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if _, ok := h.excluded[r.URL.Path]; ok {
		h.next.ServeHTTP(rw, r)
		return
	}

	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
		h.next.ServeHTTP(rw, r)
	default:
		logger := GetLoggerFromContext(r.Context())
		if logger != nil {
			logger.Warn("in-flight requests limit is exceeded", log.Int("limit", cap(h.slots)))
		}
		apiErr := restapi.NewError(h.errorDomain, InFlightLimitErrCode, "Too many in-flight requests.")
		restapi.RespondError(rw, http.StatusServiceUnavailable, apiErr, logger)
	}
}
