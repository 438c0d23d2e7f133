/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient provides an HTTP client for the validation endpoints.
// The client retries requests rejected by the validation rate limit after the time the server asks for
// in Retry-After header, throttles outgoing requests on its own side and propagates request ID.
package httpclient
