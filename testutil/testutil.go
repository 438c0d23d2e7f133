/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers for testing the validation servers: waiting for listeners,
// checking fatal error channels, Prometheus counters and rate limit rejection responses.
package testutil

type tHelper interface {
	Helper()
}
