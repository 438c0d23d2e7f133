/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-validatorkit/log"
)

// RecoveryDefaultStackSize is the number of stack trace bytes logged for a panic.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents an options for Recovery middleware.
type RecoveryOpts struct {
	// StackSize limits the logged stack trace. Zero disables stack logging.
	StackSize int
}

// Recovery turns a panic in a handler (e.g. on an unexpected document) into 500 with a plain text body.
// The panic is logged with the request-scoped logger.
func Recovery() func(next http.Handler) http.Handler {
	return RecoveryWithOpts(RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery middleware.
func RecoveryWithOpts(opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					handlePanic(rw, r, p, opts.StackSize)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func handlePanic(rw http.ResponseWriter, r *http.Request, p interface{}, stackSize int) {
	logger := GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	// http.Server silently handles http.ErrAbortHandler, it must reach it.
	if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
		logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		panic(p)
	}

	fields := []log.Field{log.String("method", r.Method), log.String("path", r.URL.Path)}
	if stackSize > 0 {
		stack := make([]byte, stackSize)
		fields = append(fields, log.Bytes("stack", stack[:runtime.Stack(stack, false)]))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)

	http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
