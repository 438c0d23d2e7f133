/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/go-validatorkit/config"
	"github.com/acronis/go-validatorkit/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes config.ByteSize
	errorDomain  string
}

// RequestBodyLimit is a middleware that sets the maximum allowed size for a request body.
// Requests with a larger Content-Length are rejected with 413 right away,
// otherwise reading more than maxSizeBytes from the body fails with *http.MaxBytesError.
func RequestBodyLimit(maxSizeBytes config.ByteSize, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next: next, maxSizeBytes: maxSizeBytes, errorDomain: errDomain}
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > int64(h.maxSizeBytes) { //nolint:gosec // maxSizeBytes is a reasonable value
		apiErr := restapi.NewErrorForHTTPCode(h.errorDomain, http.StatusRequestEntityTooLarge, "Request body is too large.").
			AddContext("maxSize", h.maxSizeBytes.String())
		restapi.RespondError(rw, http.StatusRequestEntityTooLarge, apiErr, GetLoggerFromContext(r.Context()))
		return
	}
	r.Body = http.MaxBytesReader(rw, r.Body, int64(h.maxSizeBytes)) //nolint:gosec // maxSizeBytes is a reasonable value
	h.next.ServeHTTP(rw, r)
}
