/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-validatorkit/httpserver/middleware"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/restapi"
)

// StatusClientClosedRequest is the non-standard code (introduced by Nginx) for requests the client gave up on.
const StatusClientClosedRequest = 499

// HealthCheckComponentName names a checked part of the service, e.g. "rateLimit".
type HealthCheckComponentName = string

// HealthCheckStatus is the status of one component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps components to their statuses.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck checks the service components. An error means the check itself failed.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves /healthz: 200 if all components are OK, 503 if some is not,
// 500 if the check failed.
type HealthCheckHandler struct {
	healthCheckFn HealthCheck
}

// NewHealthCheckHandler creates a HealthCheckHandler. A nil fn reports no components.
func NewHealthCheckHandler(fn HealthCheck) *HealthCheckHandler {
	if fn == nil {
		fn = func(ctx context.Context) (HealthCheckResult, error) { return HealthCheckResult{}, ctx.Err() }
	}
	return &HealthCheckHandler{healthCheckFn: fn}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContext(ctx)

	result, err := h.healthCheckFn(ctx)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		if err != nil && logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		rw.WriteHeader(StatusClientClosedRequest)
		return
	case err != nil:
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respData := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	respStatus := http.StatusOK
	for name, status := range result {
		healthy := status == HealthCheckStatusOK
		respData.Components[name] = healthy
		if !healthy {
			respStatus = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, respStatus, respData, logger)
}
