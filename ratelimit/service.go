/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/lrucache"
)

// DefaultMaxKeys is a default maximum number of rate limiting keys (and buckets) kept in memory.
const DefaultMaxKeys = 10000

// DefaultIdleTimeout determines how long a bucket that is not accessed is kept in memory.
const DefaultIdleTimeout = 24 * time.Hour

// LogFieldKey is the name of the logged field that contains a rate limiting key.
const LogFieldKey = "rate_limit_key"

// Decision is the result of an admission check.
type Decision struct {
	Proceed bool

	// SecondsToWaitForRetry is the time in whole seconds (truncated) until the next token is available.
	// It's meaningful only when Proceed is false.
	SecondsToWaitForRetry int64
}

// RetryAfter returns the number of seconds the client should wait before retrying.
// The second result is false if the request may proceed.
func (d Decision) RetryAfter() (int64, bool) {
	if d.Proceed {
		return 0, false
	}
	return d.SecondsToWaitForRetry, true
}

// Checker decides whether a request identified by the key may proceed under the policy.
type Checker interface {
	TryConsume(key string, policy Policy) Decision
}

// ServiceOpts represents options for the Service.
type ServiceOpts struct {
	// MaxKeys is the maximum number of buckets kept in memory. DefaultMaxKeys is used if it's zero.
	MaxKeys int

	// IdleTimeout is the time after which a bucket that was not accessed is dropped. DefaultIdleTimeout is used if it's zero.
	IdleTimeout time.Duration

	// Logger is used for logging decisions. Nothing is logged if it's nil.
	Logger log.FieldLogger

	// MetricsCollector collects decision statistics. Metrics are disabled if it's nil.
	MetricsCollector MetricsCollector

	// BucketsMetricsCollector collects statistics of the in-memory buckets store. Metrics are disabled if it's nil.
	BucketsMetricsCollector lrucache.MetricsCollector
}

// Service is the admission engine. It keeps a token bucket per rate limiting key
// and decides whether a request may proceed.
// It's safe for concurrent use.
type Service struct {
	enabled    bool
	warnOnly   bool
	bandwidths Bandwidths
	buckets    *lrucache.LRUCache[string, *bucket]
	logger     log.FieldLogger
	metrics    MetricsCollector
	now        func() time.Time
}

var _ Checker = (*Service)(nil)

// NewService creates a new Service.
// Capacities are resolved once here, see ResolveBandwidths.
func NewService(cfg *Config, opts ServiceOpts) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metrics := opts.MetricsCollector
	if metrics == nil {
		metrics = disabledMetrics{}
	}

	if !cfg.Enabled {
		logger.Info("validation rate limiting is disabled")
		return &Service{logger: logger, metrics: metrics, now: time.Now}, nil
	}

	maxKeys := opts.MaxKeys
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	buckets, err := lrucache.NewWithOpts[string, *bucket](maxKeys, opts.BucketsMetricsCollector,
		lrucache.Options{TTL: idleTimeout, ExpireAfterAccess: true})
	if err != nil {
		return nil, fmt.Errorf("new buckets store: %w", err)
	}

	bandwidths := ResolveBandwidths(cfg.Capacity, logger)

	mode := "blocking"
	if cfg.WarnOnly {
		mode = "warn-only"
	}
	fields := []log.Field{log.String("mode", mode), log.String("capacities", bandwidths.capacitiesString())}
	if cfg.IPHeader != "" {
		fields = append(fields, log.String("ip_header", cfg.IPHeader))
	}
	logger.Info("validation rate limiting is enabled", fields...)

	return &Service{
		enabled:    true,
		warnOnly:   cfg.WarnOnly,
		bandwidths: bandwidths,
		buckets:    buckets,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}, nil
}

// Enabled reports whether rate limiting is turned on.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Bandwidth returns the effective quota of the policy.
func (s *Service) Bandwidth(policy Policy) Bandwidth {
	return s.bandwidths.Get(policy)
}

// TryConsume takes one token from the bucket of the key.
// The bucket is created with the policy bandwidth on first use.
func (s *Service) TryConsume(key string, policy Policy) Decision {
	if !s.enabled {
		return Decision{Proceed: true}
	}

	bw := s.bandwidths.Get(policy)
	if bw.Capacity <= 0 {
		s.logger.Warn("unknown rate limit policy, request is allowed", log.String(LogFieldKey, key))
		return Decision{Proceed: true}
	}

	now := s.now()
	b, _ := s.buckets.GetOrAdd(key, func() *bucket {
		return newBucket(bw, now)
	})

	consumed, wait := b.tryConsume(now)
	if consumed {
		s.logger.Debug("OK to proceed", log.String(LogFieldKey, key))
		s.metrics.IncDecisions(policy, OutcomeAllowed)
		return Decision{Proceed: true}
	}

	if s.warnOnly {
		s.logger.Warn("request flagged after exceeding rate limit", log.String(LogFieldKey, key))
		s.metrics.IncDecisions(policy, OutcomeFlagged)
		return Decision{Proceed: true}
	}

	s.logger.Warn("request blocked after exceeding rate limit", log.String(LogFieldKey, key))
	s.metrics.IncDecisions(policy, OutcomeRejected)
	return Decision{Proceed: false, SecondsToWaitForRetry: int64(wait / time.Second)}
}

// RunPeriodicCleanup drops buckets that were not accessed for the idle timeout.
// It blocks until the context is canceled and is supposed to be run in a separate goroutine.
func (s *Service) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	if !s.enabled {
		<-ctx.Done()
		return
	}
	s.buckets.RunPeriodicCleanup(ctx, interval)
}

// RejectMessage returns the human-readable message sent to a client whose request was rejected.
func RejectMessage(secondsToWaitForRetry int64) string {
	return fmt.Sprintf("Validation rate limit exceeded. Try again after %d second(s).", secondsToWaitForRetry)
}
