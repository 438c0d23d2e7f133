/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/retry"
)

// DefaultMaxRetryAttempts is used when RetryableRoundTripperOpts.MaxRetryAttempts is zero.
const DefaultMaxRetryAttempts = 10

// UnlimitedRetryAttempts leaves stopping retries to the backoff policy.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader carries the number of the retry attempt (1, 2, ...). The first request doesn't have it.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// DefaultBackoffPolicy is used when the response has no Retry-After header: 1s, 2s, 4s and so on.
var DefaultBackoffPolicy = retry.NewExponentialBackoffPolicyWithMultiplier(time.Second, 2, 0)

// CheckRetryFunc decides whether the request should be sent again after an attempt.
// doneRetryAttempts is zero after the first request.
type CheckRetryFunc func(req *http.Request, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripper sends the request again when the validation service rejects it by the rate limit
// (429 or 503), waiting as long as Retry-After says. Failures of idempotent requests are retried with backoff.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper

	Logger         log.FieldLogger
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts doesn't count the first request.
	MaxRetryAttempts int

	// MaxRetryAfter is the longest wait the round tripper agrees to.
	// If the service demands more, its response is returned to the caller. Zero means no limit.
	MaxRetryAfter time.Duration

	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter makes BackoffPolicy define all waits.
	IgnoreRetryAfter bool

	BackoffPolicy retry.Policy
}

// RetryableRoundTripperOpts contains optional parameters of RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	Logger           log.FieldLogger
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	MaxRetryAfter    time.Duration
	CheckRetryFunc   CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// NewRetryableRoundTripper creates a RetryableRoundTripper with default parameters.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a RetryableRoundTripper.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	switch {
	case opts.MaxRetryAttempts < UnlimitedRetryAttempts:
		return nil, errors.New("incorrect max retry attempts")
	case opts.MaxRetryAfter < 0:
		return nil, errors.New("max retry after cannot be negative")
	}
	rt := &RetryableRoundTripper{
		Delegate:         delegate,
		Logger:           opts.Logger,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		MaxRetryAfter:    opts.MaxRetryAfter,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}
	if rt.MaxRetryAttempts == 0 {
		rt.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if rt.Logger == nil {
		rt.Logger = log.NewDisabledLogger()
	}
	if rt.CheckRetry == nil {
		rt.CheckRetry = DefaultCheckRetry
	}
	if rt.BackoffPolicy == nil {
		rt.BackoffPolicy = DefaultBackoffPolicy
	}
	return rt, nil
}

// RoundTrip implements http.RoundTripper.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := newReplayableBody(req)
	if err != nil {
		return nil, &RetryableRoundTripperError{Inner: err}
	}
	if req.Body != nil {
		defer func() { _ = req.Body.Close() }() // RoundTripper must close the request body.
	}

	ctx := req.Context()
	logger := rt.logger(ctx).With(log.String("method", req.Method), log.String("url", req.URL.String()))
	bf := rt.BackoffPolicy.NewBackOff()

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if attempt != 0 {
			attemptReq.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}
		if attemptReq.Body, err = body.open(); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}

		resp, rtErr := rt.Delegate.RoundTrip(attemptReq)

		wait, retryNeeded := rt.planRetry(logger, bf, attemptReq, resp, rtErr, attempt)
		if !retryNeeded {
			return resp, rtErr
		}
		if resp != nil {
			discardResponse(logger, resp)
		}

		logger.Debug("waiting before the next retry attempt", log.Duration("wait", wait), log.Int("requests_done", attempt+1))
		if err = sleepWithContext(ctx, wait); err != nil {
			logger.Warn("context canceled while waiting for the next retry attempt",
				log.Int("requests_done", attempt+1), log.Error(err))
			return nil, err
		}
	}
}

// planRetry returns how long to wait before the next attempt, or false if the result of the attempt is final.
func (rt *RetryableRoundTripper) planRetry(
	logger log.FieldLogger, bf backoff.BackOff, req *http.Request, resp *http.Response, rtErr error, attempt int,
) (time.Duration, bool) {
	retryNeeded, err := rt.CheckRetry(req, resp, rtErr, attempt)
	if err != nil {
		logger.Error("failed to check if retry is needed", log.Int("requests_done", attempt+1), log.Error(err))
		return 0, false
	}
	if !retryNeeded {
		return 0, false
	}
	if rt.MaxRetryAttempts != UnlimitedRetryAttempts && attempt >= rt.MaxRetryAttempts {
		logger.Warn("max retry attempts exceeded",
			log.Int("max_retry_attempts", rt.MaxRetryAttempts), log.Int("requests_done", attempt+1))
		return 0, false
	}

	wait := bf.NextBackOff()
	if wait == backoff.Stop {
		return 0, false
	}
	if !rt.IgnoreRetryAfter && resp != nil {
		if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
			wait = retryAfter
		}
	}
	if rt.MaxRetryAfter > 0 && wait > rt.MaxRetryAfter {
		logger.Warn("requested retry wait is too long, giving up",
			log.Duration("retry_after", wait), log.Duration("max_retry_after", rt.MaxRetryAfter))
		return 0, false
	}
	return wait, true
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		if logger := rt.LoggerProvider(ctx); logger != nil {
			return logger
		}
	}
	return rt.Logger
}

// RetryableRoundTripperError means the request could not be prepared for sending it several times.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return "retryable round trip: " + e.Inner.Error()
}

// Unwrap returns the underlying error.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries rejections of the validation rate limit (429, 503) for any request
// since a rejected request is not processed by the service.
// Temporary network errors and other 5xx responses are retried only for idempotent requests.
func DefaultCheckRetry(req *http.Request, resp *http.Response, roundTripErr error, _ int) (bool, error) {
	if roundTripErr != nil {
		return IsIdempotentRequest(req) && CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, errors.New("both response and round trip error are nil")
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return true, nil
	}
	return resp.StatusCode >= http.StatusInternalServerError && IsIdempotentRequest(req), nil
}

// IsIdempotentRequest reports whether the request may be sent again without side effects:
// its method is idempotent or its context carries the hint set by NewContextWithIdempotentHint.
func IsIdempotentRequest(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true
	default:
		return GetIdempotentHintFromContext(req.Context())
	}
}

// CheckErrorIsTemporary reports whether the network error is worth retrying.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var tempErr interface{ Temporary() bool }
	return errors.As(err, &tempErr) && tempErr.Temporary()
}

// replayableBody provides a fresh copy of the request body for every attempt.
type replayableBody struct {
	getBody func() (io.ReadCloser, error)
}

func newReplayableBody(req *http.Request) (*replayableBody, error) {
	switch {
	case req.Body == nil || req.Body == http.NoBody:
		return &replayableBody{}, nil
	case req.GetBody != nil:
		return &replayableBody{getBody: req.GetBody}, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body before the first attempt: %w", err)
	}
	return &replayableBody{getBody: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}}, nil
}

func (b *replayableBody) open() (io.ReadCloser, error) {
	if b.getBody == nil {
		return http.NoBody, nil
	}
	body, err := b.getBody()
	if err != nil {
		return nil, fmt.Errorf("get request body: %w", err)
	}
	return body, nil
}

// discardResponse reads and closes the body so the connection may be reused by the next attempt.
func discardResponse(logger log.FieldLogger, resp *http.Response) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Error("failed to close previous response body between retry attempts", log.Error(err))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfterFromResponse supports both forms of Retry-After: delay in seconds and HTTP date.
// A date in the past means retrying immediately.
func parseRetryAfterFromResponse(resp *http.Response) (time.Duration, bool) {
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second, seconds >= 0
	}
	date, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	return max(time.Until(date), 0), true
}
