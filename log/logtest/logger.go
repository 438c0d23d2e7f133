/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"io"
	"os"
	"sync"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-validatorkit/log"
)

// LoggerOpts configures NewLoggerWithOpts.
type LoggerOpts struct {
	// Output is os.Stderr if it's nil.
	Output io.Writer
}

// NewLogger creates a debug level logger that writes JSON entries to stderr.
// Entries are written synchronously, so the logger is slow and must not be used outside tests.
func NewLogger() log.FieldLogger {
	return NewLoggerWithOpts(LoggerOpts{})
}

// NewLoggerWithOpts creates a debug level logger that writes JSON entries to opts.Output.
func NewLoggerWithOpts(opts LoggerOpts) log.FieldLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	w := &jsonEntryWriter{
		out: out,
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			FieldKeyTime: "time",
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
		}),
	}
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, w)}
}

type jsonEntryWriter struct {
	mu      sync.Mutex
	out     io.Writer
	encoder logf.Encoder
}

//nolint:gocritic // logf.EntryWriter signature
func (w *jsonEntryWriter) WriteEntry(entry logf.Entry) {
	var buf logf.Buffer
	if err := w.encoder.Encode(&buf, entry); err != nil {
		buf.Data = []byte(err.Error() + "\n")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.out.Write(buf.Data)
}
