/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"time"

	"github.com/ssgreg/logf"
)

// Field is a key-value pair attached to a log entry.
type Field = logf.Field

// Field constructors. Error uses the "error" key.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Bytes    = logf.Bytes
	Int      = logf.Int
	Int64    = logf.Int64
	Bool     = logf.Bool
	Duration = logf.Duration
)

// DurationIn creates the "duration" field with the value expressed in units (e.g. time.Millisecond).
func DurationIn(val, unit time.Duration) Field {
	return logf.Int64("duration", int64(val/unit))
}
