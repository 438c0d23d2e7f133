/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package grpcserver provides the gRPC surface of the validation service.
// The server chains request ID, panic recovery and validation rate limit interceptors,
// supports keepalive and message size limits, and implements service.Unit for graceful shutdown.
package grpcserver
