/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"net"
	"net/http"
)

// ClientRequest provides the client data needed to build a rate limiting key.
// Implementations exist for HTTP requests and gRPC calls.
type ClientRequest interface {
	// RemoteAddr returns the transport-level address of the client without a port.
	RemoteAddr() string

	// Header returns the first value of the named header (or metadata entry) and whether it is present.
	Header(name string) (string, bool)
}

// HTTPClientRequest adapts *http.Request to ClientRequest.
type HTTPClientRequest struct {
	r *http.Request
}

var _ ClientRequest = HTTPClientRequest{}

// NewHTTPClientRequest creates a ClientRequest for the given HTTP request.
func NewHTTPClientRequest(r *http.Request) HTTPClientRequest {
	return HTTPClientRequest{r: r}
}

// RemoteAddr returns http.Request.RemoteAddr with the port stripped.
func (hr HTTPClientRequest) RemoteAddr() string {
	return StripPort(hr.r.RemoteAddr)
}

// Header returns the first value of the HTTP header.
func (hr HTTPClientRequest) Header(name string) (string, bool) {
	values := hr.r.Header.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// StripPort removes the port from a "host:port" address.
// Addresses without a port are returned unchanged.
func StripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
