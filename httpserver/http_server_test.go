/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/config"
	"github.com/acronis/go-validatorkit/httpserver/middleware"
	"github.com/acronis/go-validatorkit/log/logtest"
	"github.com/acronis/go-validatorkit/ratelimit"
	"github.com/acronis/go-validatorkit/restapi"
	"github.com/acronis/go-validatorkit/testutil"
)

const testErrDomain = "Validator"

func makeSOAPEnvelope(bodyContent string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:v="http://validator.example.com/">` +
		`<soapenv:Body>` + bodyContent + `</soapenv:Body>` +
		`</soapenv:Envelope>`
}

func newTestRateLimitService(t *testing.T, capacity map[string]int) (*ratelimit.Service, *ratelimit.PrometheusMetrics) {
	t.Helper()
	promMetrics := ratelimit.NewPrometheusMetrics()
	rlService, err := ratelimit.NewService(&ratelimit.Config{Enabled: true, Capacity: capacity},
		ratelimit.ServiceOpts{MetricsCollector: promMetrics})
	require.NoError(t, err)
	return rlService, promMetrics
}

func newTestOpts(checker ratelimit.Checker) Opts {
	return Opts{
		ErrorDomain: testErrDomain,
		APIRoutes: func(router chi.Router) {
			router.Post("/upload", func(rw http.ResponseWriter, r *http.Request) {
				rw.WriteHeader(http.StatusOK)
			})
			router.Post("/api/validate", func(rw http.ResponseWriter, r *http.Request) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					restapi.RespondError(rw, http.StatusRequestEntityTooLarge,
						restapi.NewErrorForHTTPCode(testErrDomain, http.StatusRequestEntityTooLarge, ""), nil)
					return
				}
				restapi.RespondJSON(rw, map[string]int{"size": len(body)}, middleware.GetLoggerFromContext(r.Context()))
			})
			router.Get("/api/version", func(rw http.ResponseWriter, r *http.Request) {
				restapi.RespondJSON(rw, map[string]string{"version": "1.0"}, nil)
			})
			router.Post("/api/panic", func(rw http.ResponseWriter, r *http.Request) {
				panic("PANIC!!!")
			})
		},
		SOAPHandler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
			_, _ = rw.Write(body)
		}),
		RateLimit: RateLimitOpts{Checker: checker},
	}
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(method, target, strings.NewReader(body)))
	return resp
}

func TestHTTPServer_StartAndStop(t *testing.T) {
	for _, gracefully := range []bool{true, false} {
		cfg := NewDefaultConfig()
		cfg.Address = testutil.GetLocalAddrWithFreeTCPPort()
		logger := logtest.NewRecorder()

		httpServer, err := New(cfg, logger, newTestOpts(nil))
		require.NoError(t, err)
		fatalErr := make(chan error, 1)
		go httpServer.Start(fatalErr)
		require.NoError(t, testutil.WaitListeningServer(cfg.Address, time.Second*3))
		require.Equal(t, "http://"+cfg.Address, httpServer.URL())

		resp, err := http.Get(httpServer.URL() + "/api/version")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		respBody, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"version":"1.0"}`, string(respBody))
		require.NoError(t, resp.Body.Close())

		require.NoError(t, httpServer.Stop(gracefully))
		testutil.RequireNoErrorInChannel(t, fatalErr)

		_, found := logger.FindEntry("starting application HTTP server...")
		require.True(t, found)
		_, found = logger.FindEntry("application HTTP server closed")
		require.True(t, found)
	}
}

func TestHTTPServer_StopWithoutStart(t *testing.T) {
	httpServer, err := New(NewDefaultConfig(), logtest.NewLogger(), newTestOpts(nil))
	require.NoError(t, err)
	require.NoError(t, httpServer.Stop(true))
	require.NoError(t, httpServer.Stop(false))
}

func TestHTTPServer_BusyAddress(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Address = testutil.GetLocalAddrWithFreeTCPPort()

	first, err := New(cfg, logtest.NewLogger(), newTestOpts(nil))
	require.NoError(t, err)
	firstFatalErr := make(chan error, 1)
	go first.Start(firstFatalErr)
	require.NoError(t, testutil.WaitListeningServer(cfg.Address, time.Second*3))
	defer func() {
		require.NoError(t, first.Stop(false))
		testutil.RequireNoErrorInChannel(t, firstFatalErr)
	}()

	second, err := New(cfg, logtest.NewLogger(), newTestOpts(nil))
	require.NoError(t, err)
	secondFatalErr := make(chan error, 1)
	go second.Start(secondFatalErr)
	require.Error(t, testutil.RequireErrorInChannel(t, secondFatalErr, time.Second*3))
}

func TestHTTPServer_Routes(t *testing.T) {
	logger := logtest.NewRecorder()
	httpServer, err := New(NewDefaultConfig(), logger, newTestOpts(nil))
	require.NoError(t, err)
	handler := httpServer.HTTPServer.Handler

	resp := serve(handler, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"components":{}}`, resp.Body.String())

	resp = serve(handler, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = serve(handler, http.MethodGet, "/unknown", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"Validator","code":"notFound","message":"Not found."}}`, resp.Body.String())

	resp = serve(handler, http.MethodGet, "/api/validate", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)

	resp = serve(handler, http.MethodPost, "/api/panic", "")
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	_, found := logger.FindEntry("Panic: PANIC!!!")
	require.True(t, found)

	resp = serve(handler, http.MethodPost, DefaultSOAPPath, makeSOAPEnvelope(`<v:validate/>`))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, makeSOAPEnvelope(`<v:validate/>`), resp.Body.String())
}

func TestHTTPServer_RateLimit(t *testing.T) {
	rlService, promMetrics := newTestRateLimitService(t, map[string]int{
		"uiValidate":   1,
		"restValidate": 2,
		"soapValidate": 1,
	})
	cfg := NewDefaultConfig()
	cfg.RateLimit.ResponseStatusCode = http.StatusServiceUnavailable
	httpServer, err := New(cfg, logtest.NewLogger(), newTestOpts(rlService))
	require.NoError(t, err)
	handler := httpServer.HTTPServer.Handler

	t.Run("UI upload", func(t *testing.T) {
		require.Equal(t, http.StatusOK, serve(handler, http.MethodPost, "/upload", "").Code)
		resp := serve(handler, http.MethodPost, "/upload", "")
		retryAfter := testutil.RequireRateLimitRejectionInRecorder(t, resp, http.StatusServiceUnavailable)
		require.LessOrEqual(t, retryAfter, 60)
	})

	t.Run("REST API", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp := serve(handler, http.MethodPost, "/api/validate", "<doc/>")
			require.Equal(t, http.StatusOK, resp.Code)
			require.JSONEq(t, `{"size":6}`, resp.Body.String())
		}
		testutil.RequireRateLimitRejectionInRecorder(t,
			serve(handler, http.MethodPost, "/api/validate", "<doc/>"), http.StatusServiceUnavailable)

		// Not a validation operation.
		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/api/version", "").Code)
		}
	})

	t.Run("SOAP", func(t *testing.T) {
		validateReq := makeSOAPEnvelope(`<v:validate><v:document>PGRvYy8+</v:document></v:validate>`)
		resp := serve(handler, http.MethodPost, DefaultSOAPPath, validateReq)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, validateReq, resp.Body.String())

		resp = serve(handler, http.MethodPost, DefaultSOAPPath, validateReq)
		faultString := testutil.RequireSOAPFaultInRecorder(t, resp, http.StatusInternalServerError, "soap:Server")
		require.Contains(t, faultString, "Validation rate limit exceeded.")

		// Other operations are not limited.
		for i := 0; i < 3; i++ {
			resp = serve(handler, http.MethodPost, DefaultSOAPPath, makeSOAPEnvelope(`<v:getVersion/>`))
			require.Equal(t, http.StatusOK, resp.Code)
		}
	})

	for _, tt := range []struct {
		policy   ratelimit.Policy
		outcome  ratelimit.Outcome
		expected int
	}{
		{ratelimit.PolicyUIValidate, ratelimit.OutcomeAllowed, 1},
		{ratelimit.PolicyUIValidate, ratelimit.OutcomeRejected, 1},
		{ratelimit.PolicyRESTValidate, ratelimit.OutcomeAllowed, 2},
		{ratelimit.PolicyRESTValidate, ratelimit.OutcomeRejected, 1},
		{ratelimit.PolicySOAPValidate, ratelimit.OutcomeAllowed, 1},
		{ratelimit.PolicySOAPValidate, ratelimit.OutcomeRejected, 1},
	} {
		testutil.RequireSamplesCountInCounter(t,
			promMetrics.DecisionsTotal.WithLabelValues(tt.policy.String(), string(tt.outcome)), tt.expected)
	}
}

func TestHTTPServer_RequestBodyLimit(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Limits.MaxRequestBodySize = config.ByteSize(4)
	httpServer, err := New(cfg, logtest.NewLogger(), newTestOpts(nil))
	require.NoError(t, err)
	handler := httpServer.HTTPServer.Handler

	require.Equal(t, http.StatusOK, serve(handler, http.MethodPost, "/api/validate", "<a/>").Code)

	resp := serve(handler, http.MethodPost, "/api/validate", "<doc/>")
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.Contains(t, resp.Body.String(), `"code":"requestEntityTooLarge"`)
}

func TestHTTPServer_SOAPRateLimitWithPaddedEnvelope(t *testing.T) {
	rlService, promMetrics := newTestRateLimitService(t, map[string]int{"soapValidate": 1})
	cfg := NewDefaultConfig()
	cfg.Limits.MaxRequestBodySize = config.ByteSize(1 << 20)
	httpServer, err := New(cfg, logtest.NewLogger(), newTestOpts(rlService))
	require.NoError(t, err)
	handler := httpServer.HTTPServer.Handler

	makePaddedEnvelope := func(paddingSize int) string {
		return `<?xml version="1.0" encoding="UTF-8"?>` +
			`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:v="http://validator.example.com/">` +
			`<soapenv:Header><!--` + strings.Repeat("x", paddingSize) + `--></soapenv:Header>` +
			`<soapenv:Body><v:validate><v:document>PGRvYy8+</v:document></v:validate></soapenv:Body>` +
			`</soapenv:Envelope>`
	}

	validateReq := makePaddedEnvelope(70 << 10)
	resp := serve(handler, http.MethodPost, DefaultSOAPPath, validateReq)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, validateReq, resp.Body.String())

	for i := 0; i < 3; i++ {
		resp = serve(handler, http.MethodPost, DefaultSOAPPath, validateReq)
		testutil.RequireSOAPFaultInRecorder(t, resp, http.StatusInternalServerError, "soap:Server")
	}

	// Envelope exceeding the body limit is rejected before it's decoded.
	resp = serve(handler, http.MethodPost, DefaultSOAPPath, makePaddedEnvelope(2<<20))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)

	testutil.RequireSamplesCountInCounter(t, promMetrics.DecisionsTotal.WithLabelValues(
		ratelimit.PolicySOAPValidate.String(), string(ratelimit.OutcomeAllowed)), 1)
	testutil.RequireSamplesCountInCounter(t, promMetrics.DecisionsTotal.WithLabelValues(
		ratelimit.PolicySOAPValidate.String(), string(ratelimit.OutcomeRejected)), 3)
}
