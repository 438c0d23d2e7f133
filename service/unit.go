/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a component of the validation service with its own lifecycle
// (HTTP server, gRPC server, background bucket cleanup).
type Unit interface {
	// Start runs the unit. It may return immediately after initialization
	// or block for the whole lifetime of the unit.
	//
	// Start writes to the fatalErr channel only when the unit failed, and never after it has returned.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	// If gracefully is true, in-flight work is allowed to finish.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
