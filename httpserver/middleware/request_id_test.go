/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log/logtest"
)

// serveWithRequestID runs the middleware once and returns the request seen by the next handler.
func serveWithRequestID(t *testing.T, mw func(http.Handler) http.Handler, reqHeaders map[string]string) (*http.Request, http.Header) {
	t.Helper()
	var seen *http.Request
	handler := mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = r }))
	req := httptest.NewRequest(http.MethodPost, "/api/validate", nil)
	for k, v := range reqHeaders {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.NotNil(t, seen, "next handler was not called")
	return seen, resp.Header()
}

func TestRequestID(t *testing.T) {
	fixedIDs := RequestIDOpts{
		GenerateID:         func() string { return "gen-ext" },
		GenerateInternalID: func() string { return "gen-int" },
	}

	tests := []struct {
		name       string
		reqHeaders map[string]string
		wantExtID  string
	}{
		{
			name:       "external id is taken from header",
			reqHeaders: map[string]string{headerRequestID: "client-id", headerInternalRequestID: "client-int-id"},
			wantExtID:  "client-id",
		},
		{
			name:      "external id is generated when header is missing",
			wantExtID: "gen-ext",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, respHeader := serveWithRequestID(t, RequestIDWithOpts(fixedIDs), tt.reqHeaders)
			require.Equal(t, tt.wantExtID, GetRequestIDFromContext(r.Context()))
			require.Equal(t, tt.wantExtID, respHeader.Get(headerRequestID))
			// Internal id is never taken from the client.
			require.Equal(t, "gen-int", GetInternalRequestIDFromContext(r.Context()))
			require.Equal(t, "gen-int", respHeader.Get(headerInternalRequestID))
			require.Nil(t, GetLoggerFromContext(r.Context()))
		})
	}
}

func TestRequestID_DefaultGenerators(t *testing.T) {
	r1, h1 := serveWithRequestID(t, RequestID(nil), nil)
	r2, _ := serveWithRequestID(t, RequestID(nil), nil)

	require.NotEmpty(t, GetRequestIDFromContext(r1.Context()))
	require.NotEmpty(t, GetInternalRequestIDFromContext(r1.Context()))
	require.Equal(t, GetRequestIDFromContext(r1.Context()), h1.Get(headerRequestID))
	require.NotEqual(t, GetInternalRequestIDFromContext(r1.Context()), GetInternalRequestIDFromContext(r2.Context()))
}

func TestRequestID_RequestScopedLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	r, _ := serveWithRequestID(t, RequestIDWithOpts(RequestIDOpts{
		GenerateID:         func() string { return "gen-ext" },
		GenerateInternalID: func() string { return "gen-int" },
		Logger:             recorder,
	}), nil)

	logger := GetLoggerFromContext(r.Context())
	require.NotNil(t, logger)
	logger.Info("validation started")

	entry, found := recorder.FindEntry("validation started")
	require.True(t, found)
	for field, want := range map[string]string{"request_id": "gen-ext", "int_request_id": "gen-int"} {
		got, ok := entry.StringField(field)
		require.True(t, ok, field)
		require.Equal(t, want, got)
	}
}
