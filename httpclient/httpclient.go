/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/acronis/go-validatorkit/internal/libinfo"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/netutil"
)

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// UserAgent is prepended to the library product token in User-Agent header.
	UserAgent string

	// Delegate is the innermost RoundTripper in the chain. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// Logger is used when there is no logger in the request context.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger
}

// New creates an HTTP client for calling the validation endpoints
// with logging, rate limiting, user agent, request ID and retries configured by cfg.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// Must is the same as New but panics if any error occurs.
func Must(cfg *Config) *http.Client {
	client, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// NewWithOpts creates an HTTP client with options.
// Each retry attempt passes through logging and client side rate limiting.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error
	delegate := opts.Delegate
	if delegate == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if len(cfg.DNS.Servers) != 0 {
			resolver, resolverErr := netutil.NewRoundRobinDNSResolver(cfg.DNS.Servers, cfg.DNS.DialTimeout.Duration())
			if resolverErr != nil {
				return nil, fmt.Errorf("create DNS resolver: %w", resolverErr)
			}
			transport.DialContext = (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
				Resolver:  resolver,
			}).DialContext
		}
		delegate = transport
	}

	if cfg.Log.Mode != LoggingModeNone {
		delegate = NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{
			Logger:               opts.Logger,
			LoggerProvider:       opts.LoggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: cfg.Log.SlowRequestThreshold.Duration(),
		})
	}

	if cfg.RateLimits.Enabled {
		if delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.LimitPerMinute,
			RateLimitingRoundTripperOpts{
				Burst:       cfg.RateLimits.Burst,
				WaitTimeout: cfg.RateLimits.WaitTimeout.Duration(),
			}); err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	userAgent := libinfo.UserAgent()
	if opts.UserAgent != "" {
		userAgent = opts.UserAgent + " " + userAgent
	}
	delegate = NewUserAgentRoundTripper(delegate, userAgent)

	delegate = NewRequestIDRoundTripper(delegate)

	if cfg.Retries.Enabled {
		if delegate, err = NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
			Logger:           opts.Logger,
			LoggerProvider:   opts.LoggerProvider,
			MaxRetryAttempts: cfg.Retries.MaxAttempts,
			MaxRetryAfter:    cfg.Retries.MaxRetryAfter.Duration(),
			BackoffPolicy:    cfg.Retries.GetPolicy(),
		}); err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return &http.Client{Transport: delegate, Timeout: cfg.Timeout.Duration()}, nil
}

// MustWithOpts is the same as NewWithOpts but panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
