/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides admission control for document validation services.
//
// Every protected operation belongs to a Policy with its own quota (requests per minute).
// The Service keeps a token bucket per client address and policy, the bucket is refilled
// to its full capacity once per minute. Transport adapters (HTTP middlewares and gRPC interceptors)
// build keys with the KeyGenerator, ask the Service via the Checker interface
// and convert a negative Decision into a protocol-specific rejection.
package ratelimit
