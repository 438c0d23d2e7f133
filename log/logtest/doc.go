/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest contains log.FieldLogger implementations for tests:
// Recorder keeps entries in memory for assertions, NewLogger writes them synchronously as JSON.
package logtest
