/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/xml"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

const (
	contentTypeTextPlain = "text/plain; charset=utf-8"
	contentTypeTextXML   = "text/xml; charset=utf-8"
)

// RequireRateLimitRejectionInRecorder asserts that the recorded response is a rate limit rejection
// (plain text message and Retry-After header) and returns the number of seconds from Retry-After.
func RequireRateLimitRejectionInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int) int {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, contentTypeTextPlain, resp.Header().Get("Content-Type"))
	retryAfter, err := strconv.Atoi(resp.Header().Get("Retry-After"))
	require.NoError(t, err, "Retry-After header should contain the number of seconds")
	require.GreaterOrEqual(t, retryAfter, 0)
	require.Equal(t, "Validation rate limit exceeded. Try again after "+strconv.Itoa(retryAfter)+" second(s).",
		resp.Body.String())
	return retryAfter
}

// RequireSOAPFaultInRecorder asserts that the recorded response is a SOAP 1.1 Fault with the given code
// and returns the fault string.
func RequireSOAPFaultInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantFaultCode string) string {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.Code)
	require.Equal(t, contentTypeTextXML, resp.Header().Get("Content-Type"))
	var fault struct {
		Code   string `xml:"Body>Fault>faultcode"`
		String string `xml:"Body>Fault>faultstring"`
	}
	require.NoError(t, xml.Unmarshal(resp.Body.Bytes(), &fault))
	require.Equal(t, wantFaultCode, fault.Code)
	return fault.String
}
