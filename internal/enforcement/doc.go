/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package enforcement contains the request processing skeleton shared by the rate limiting
// HTTP middlewares and gRPC interceptors: resolve the target of the request,
// ask the admission engine and either execute the request or reject it.
package enforcement
