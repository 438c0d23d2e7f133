/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package interceptor provides gRPC unary server interceptors for validation services:
// validation rate limiting, panic recovery and request ID handling.
package interceptor
