/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/ratelimit"
)

func makeSOAPEnvelope(bodyContent string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:v="http://validator.example.com/">` +
		`<soapenv:Header><v:auth>token</v:auth></soapenv:Header>` +
		`<soapenv:Body>` + bodyContent + `</soapenv:Body>` +
		`</soapenv:Envelope>`
}

type soapNextHandler struct {
	called int
	body   string
}

func (h *soapNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called++
	b, _ := io.ReadAll(r.Body)
	h.body = string(b)
	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
}

func TestSOAPRateLimitHandler_ServeHTTP(t *testing.T) {
	keyGen := ratelimit.NewKeyGenerator(ratelimit.KeyGeneratorOpts{})

	serve := func(handler http.Handler, reqBody string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/domain1/soap", strings.NewReader(reqBody))
		req.RemoteAddr = "198.51.100.7:5000"
		req.Header.Set("Content-Type", "text/xml; charset=utf-8")
		respRec := httptest.NewRecorder()
		handler.ServeHTTP(respRec, req)
		return respRec
	}

	t.Run("other operation is passed through without check", func(t *testing.T) {
		checker := &mockChecker{decision: ratelimit.Decision{Proceed: false, SecondsToWaitForRetry: 10}}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

		reqBody := makeSOAPEnvelope(`<v:getVersion/>`)
		respRec := serve(handler, reqBody)

		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, 1, next.called)
		require.Equal(t, reqBody, next.body)
		require.Equal(t, 0, checker.Calls())
	})

	t.Run("validate operation is allowed", func(t *testing.T) {
		checker := &mockChecker{decision: ratelimit.Decision{Proceed: true}}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

		reqBody := makeSOAPEnvelope(`<v:validate><v:document>PGRvYy8+</v:document></v:validate>`)
		respRec := serve(handler, reqBody)

		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, 1, next.called)
		require.Equal(t, reqBody, next.body)
		require.Equal(t, 1, checker.Calls())
		require.Equal(t, "198.51.100.7|soapValidate", checker.lastKey)
		require.Equal(t, ratelimit.PolicySOAPValidate, checker.lastPolicy)
	})

	t.Run("validate operation is rejected with SOAP fault", func(t *testing.T) {
		checker := &mockChecker{decision: ratelimit.Decision{Proceed: false, SecondsToWaitForRetry: 42}}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

		respRec := serve(handler, makeSOAPEnvelope(`<v:validate/>`))

		require.Equal(t, 0, next.called)
		require.Equal(t, http.StatusInternalServerError, respRec.Code)
		require.Equal(t, "text/xml; charset=utf-8", respRec.Header().Get("Content-Type"))

		var fault struct {
			Code   string `xml:"Body>Fault>faultcode"`
			String string `xml:"Body>Fault>faultstring"`
		}
		require.NoError(t, xml.Unmarshal(respRec.Body.Bytes(), &fault))
		require.Equal(t, "soap:Server", fault.Code)
		require.Equal(t, "Validation rate limit exceeded. Try again after 42 second(s).", fault.String)
		require.Contains(t, respRec.Body.String(), `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`)
	})

	t.Run("custom operation name", func(t *testing.T) {
		checker := &mockChecker{decision: ratelimit.Decision{Proceed: true}}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{OperationName: "validateBatch"})(next)

		serve(handler, makeSOAPEnvelope(`<v:validate/>`))
		require.Equal(t, 0, checker.Calls())

		serve(handler, makeSOAPEnvelope(`<v:validateBatch/>`))
		require.Equal(t, 1, checker.Calls())
		require.Equal(t, 2, next.called)
	})

	t.Run("operation name is case-sensitive", func(t *testing.T) {
		checker := &mockChecker{decision: ratelimit.Decision{Proceed: false, SecondsToWaitForRetry: 10}}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

		for _, op := range []string{"Validate", "VALIDATE"} {
			respRec := serve(handler, makeSOAPEnvelope(`<v:`+op+`/>`))
			require.Equal(t, http.StatusOK, respRec.Code, op)
		}
		require.Equal(t, 0, checker.Calls())
		require.Equal(t, 2, next.called)
	})

	t.Run("operation after a large header and before a large document is checked", func(t *testing.T) {
		checker := &mockChecker{next: newTestRateLimitService(t, map[string]int{"soapValidate": 1})}
		next := &soapNextHandler{}
		handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

		reqBody := `<?xml version="1.0" encoding="UTF-8"?>` +
			`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:v="http://validator.example.com/">` +
			`<soapenv:Header><!--` + strings.Repeat("x", 70<<10) + `--></soapenv:Header>` +
			`<soapenv:Body><v:validate><v:document>` + strings.Repeat("A", 256<<10) + `</v:document></v:validate></soapenv:Body>` +
			`</soapenv:Envelope>`

		var statuses []int
		for i := 0; i < 5; i++ {
			statuses = append(statuses, serve(handler, reqBody).Code)
		}
		require.Equal(t, []int{
			http.StatusOK,
			http.StatusInternalServerError,
			http.StatusInternalServerError,
			http.StatusInternalServerError,
			http.StatusInternalServerError,
		}, statuses)
		require.Equal(t, 5, checker.Calls())
		require.Equal(t, 1, next.called)
		require.Equal(t, reqBody, next.body)
	})

	t.Run("unparseable requests are passed through", func(t *testing.T) {
		for _, reqBody := range []string{
			"",
			"not xml at all",
			`<html><body><validate/></body></html>`,
			makeSOAPEnvelope(""),
			`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"><soapenv:Body>`,
		} {
			checker := &mockChecker{decision: ratelimit.Decision{Proceed: false, SecondsToWaitForRetry: 10}}
			next := &soapNextHandler{}
			handler := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})(next)

			respRec := serve(handler, reqBody)

			require.Equal(t, http.StatusOK, respRec.Code, reqBody)
			require.Equal(t, 1, next.called, reqBody)
			require.Equal(t, reqBody, next.body)
			require.Equal(t, 0, checker.Calls(), reqBody)
		}
	})

	t.Run("request is checked only once", func(t *testing.T) {
		checker := &mockChecker{next: newTestRateLimitService(t, map[string]int{"soapValidate": 1})}
		next := &soapNextHandler{}
		mw := SOAPRateLimit(checker, keyGen, SOAPRateLimitOpts{})
		handler := mw(mw(next))

		respRec := serve(handler, makeSOAPEnvelope(`<v:validate/>`))
		require.Equal(t, http.StatusOK, respRec.Code)
		require.Equal(t, 1, checker.Calls())

		respRec = serve(handler, makeSOAPEnvelope(`<v:validate/>`))
		require.Equal(t, http.StatusInternalServerError, respRec.Code)
		require.Equal(t, 2, checker.Calls())
		require.Equal(t, 1, next.called)
	})
}

func TestParseSOAPOperation(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantOp     string
		wantErrStr string
	}{
		{
			name:   "without header",
			data:   `<Envelope><Body><validate/></Body></Envelope>`,
			wantOp: "validate",
		},
		{
			name:   "with header and prefixes",
			data:   makeSOAPEnvelope(`<ns2:validateMultiple xmlns:ns2="urn:x"/>`),
			wantOp: "validateMultiple",
		},
		{
			name:       "empty body",
			data:       `<Envelope><Body>   </Body></Envelope>`,
			wantErrStr: "SOAP Body is empty",
		},
		{
			name:       "no body",
			data:       `<Envelope><Header/></Envelope>`,
			wantErrStr: "SOAP Body is not found",
		},
		{
			name:       "wrong root",
			data:       `<Body><validate/></Body>`,
			wantErrStr: `unexpected root element "Body"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := parseSOAPOperation(strings.NewReader(tt.data))
			if tt.wantErrStr != "" {
				require.EqualError(t, err, tt.wantErrStr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOp, op)
		})
	}
}
