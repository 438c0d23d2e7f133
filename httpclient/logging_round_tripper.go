/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/acronis/go-validatorkit/httpserver/middleware"
	"github.com/acronis/go-validatorkit/log"
)

// LoggingMode selects which outgoing requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

var loggingModes = []LoggingMode{LoggingModeNone, LoggingModeAll, LoggingModeFailed}

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	return slices.Contains(loggingModes, lm)
}

// LoggingRoundTripper logs outgoing validation requests and their results.
// Rejections by the validation rate limit (429 and 503) are logged at warn level together with Retry-After.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Logger is the fallback when there is no request-scoped logger.
	Logger log.FieldLogger

	// LoggerProvider returns a request-scoped logger. middleware.GetLoggerFromContext is used if it's nil.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode is LoggingModeAll if it's empty.
	Mode LoggingMode

	// SlowRequestThreshold makes requests faster than it not logged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, logger log.FieldLogger) *LoggingRoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{Logger: logger})
}

// NewLoggingRoundTripperWithOpts is a more configurable version of NewLoggingRoundTripper.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) *LoggingRoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) loggerFor(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		if logger := rt.Opts.LoggerProvider(ctx); logger != nil {
			return logger
		}
	}
	return rt.Opts.Logger
}

// RoundTrip executes a single HTTP transaction and logs its result.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	logger := rt.loggerFor(r.Context())
	if logger == nil || elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}
	if err == nil && rt.Opts.Mode == LoggingModeFailed && resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if reqType := GetRequestTypeFromContext(r.Context()); reqType != "" {
		fields = append(fields, log.String("request_type", reqType))
	}
	if retryAttempt := r.Header.Get(RetryAttemptNumberHeader); retryAttempt != "" {
		fields = append(fields, log.String("retry_attempt", retryAttempt))
	}

	if err != nil {
		logger.Error("client HTTP request failed", append(fields, log.Error(err))...)
		return resp, err
	}

	fields = append(fields, log.Int("status", resp.StatusCode))
	switch {
	case isRateLimitRejection(resp):
		fields = append(fields, log.String("retry_after", resp.Header.Get("Retry-After")))
		logger.Warn("client HTTP request rejected by rate limit", fields...)
	case resp.StatusCode >= http.StatusBadRequest:
		logger.Warn("client HTTP request finished with error status", fields...)
	default:
		logger.Info("client HTTP request finished", fields...)
	}
	return resp, err
}

func isRateLimitRejection(resp *http.Response) bool {
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
}
