/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = time.Minute
)

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	// Burst is DefaultRateLimitingBurst if it's zero.
	Burst int

	// WaitTimeout bounds the time a request may be held back. DefaultRateLimitingWaitTimeout is used if it's zero.
	WaitTimeout time.Duration
}

// RateLimitingRoundTripper keeps a client within its validation quota.
// Outgoing requests are spread evenly (no more than LimitPerMinute per minute), and after
// a 429 response with Retry-After all requests are held back until the server is ready to accept them again.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	LimitPerMinute int
	Burst          int
	WaitTimeout    time.Duration

	limiter     *rate.Limiter
	pausedUntil atomic.Int64 // unix nanoseconds
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, limitPerMinute int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, limitPerMinute, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts is a more configurable version of NewRateLimitingRoundTripper.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, limitPerMinute int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case limitPerMinute <= 0:
		return nil, errors.New("rate limit must be positive")
	case opts.Burst < 0:
		return nil, errors.New("burst must be positive")
	}
	rt := &RateLimitingRoundTripper{
		Delegate:       delegate,
		LimitPerMinute: limitPerMinute,
		Burst:          opts.Burst,
		WaitTimeout:    opts.WaitTimeout,
	}
	if rt.Burst == 0 {
		rt.Burst = DefaultRateLimitingBurst
	}
	if rt.WaitTimeout == 0 {
		rt.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	interval := time.Minute / time.Duration(limitPerMinute)
	rt.limiter = rate.NewLimiter(rate.Every(interval), rt.Burst)
	return rt, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
			rt.pauseFor(retryAfter)
		}
	}
	return resp, err
}

func (rt *RateLimitingRoundTripper) wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rt.WaitTimeout)
	defer cancel()

	if pause := time.Until(time.Unix(0, rt.pausedUntil.Load())); pause > 0 {
		if err := sleepWithContext(ctx, pause); err != nil {
			return err
		}
	}
	return rt.limiter.Wait(ctx)
}

// pauseFor moves the pause end forward, it's never shortened.
func (rt *RateLimitingRoundTripper) pauseFor(d time.Duration) {
	until := time.Now().Add(d).UnixNano()
	for {
		cur := rt.pausedUntil.Load()
		if cur >= until || rt.pausedUntil.CompareAndSwap(cur, until) {
			return
		}
	}
}

// RateLimitingWaitError is returned by RateLimitingRoundTripper.RoundTrip
// when the request cannot be sent within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
