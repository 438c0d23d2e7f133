/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/acronis/go-validatorkit/config"
	"github.com/acronis/go-validatorkit/retry"
)

const cfgDefaultKeyPrefix = "httpClient"

// Retry policy strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

const (
	cfgKeyTimeout                                 = "timeout"
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMaxAttempts                      = "retries.maxAttempts"
	cfgKeyRetriesMaxRetryAfter                    = "retries.maxRetryAfter"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsLimitPerMinute                = "rateLimits.limitPerMinute"
	cfgKeyRateLimitsBurst                         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyLogMode                                 = "log.mode"
	cfgKeyLogSlowRequestThreshold                 = "log.slowRequestThreshold"
	cfgKeyDNSServers                              = "dns.servers"
	cfgKeyDNSDialTimeout                          = "dns.dialTimeout"
)

const (
	defaultTimeout                           = time.Minute * 3
	defaultRetriesEnabled                    = true
	defaultRetriesMaxAttempts                = 3
	defaultRetriesMaxRetryAfter              = time.Minute
	defaultRetriesPolicyStrategy             = RetryPolicyExponential
	defaultExponentialBackoffInitialInterval = time.Second
	defaultExponentialBackoffMultiplier      = 2.0
	defaultConstantBackoffInterval           = time.Second
	defaultRateLimitsLimitPerMinute          = 60
	defaultRateLimitsBurst                   = 1
	defaultRateLimitsWaitTimeout             = time.Minute
	defaultLogMode                           = LoggingModeFailed
	defaultDNSDialTimeout                    = time.Second * 5
)

// Config represents options for the validation HTTP client.
type Config struct {
	// Timeout limits the whole call including retries and waits between them. Zero means no timeout.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	Retries    RetriesConfig   `mapstructure:"retries" yaml:"retries" json:"retries"`
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	DNS        DNSConfig       `mapstructure:"dns" yaml:"dns" json:"dns"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Timeout = config.TimeDuration(defaultTimeout)
	cfg.Retries = RetriesConfig{
		Enabled:       defaultRetriesEnabled,
		MaxAttempts:   defaultRetriesMaxAttempts,
		MaxRetryAfter: config.TimeDuration(defaultRetriesMaxRetryAfter),
		Policy: PolicyConfig{
			Strategy:                          defaultRetriesPolicyStrategy,
			ExponentialBackoffInitialInterval: config.TimeDuration(defaultExponentialBackoffInitialInterval),
			ExponentialBackoffMultiplier:      defaultExponentialBackoffMultiplier,
			ConstantBackoffInterval:           config.TimeDuration(defaultConstantBackoffInterval),
		},
	}
	cfg.RateLimits = RateLimitConfig{
		LimitPerMinute: defaultRateLimitsLimitPerMinute,
		Burst:          defaultRateLimitsBurst,
		WaitTimeout:    config.TimeDuration(defaultRateLimitsWaitTimeout),
	}
	cfg.Log.Mode = defaultLogMode
	cfg.DNS.DialTimeout = config.TimeDuration(defaultDNSDialTimeout)
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the HTTP client in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, defaultTimeout)
	dp.SetDefault(cfgKeyRetriesEnabled, defaultRetriesEnabled)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, defaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesMaxRetryAfter, defaultRetriesMaxRetryAfter)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, defaultRetriesPolicyStrategy)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, defaultExponentialBackoffInitialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, defaultExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyRetriesPolicyConstantInterval, defaultConstantBackoffInterval)
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsLimitPerMinute, defaultRateLimitsLimitPerMinute)
	dp.SetDefault(cfgKeyRateLimitsBurst, defaultRateLimitsBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, defaultRateLimitsWaitTimeout)
	dp.SetDefault(cfgKeyLogMode, string(defaultLogMode))
	dp.SetDefault(cfgKeyDNSDialTimeout, defaultDNSDialTimeout)
}

// Set sets HTTP client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, errors.New("cannot be negative"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.DNS.Set(dp)
}

// RetriesConfig represents configuration of retries for rejected and failed requests.
type RetriesConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// MaxAttempts is the maximum number of retry attempts (the first request is not counted).
	// Zero means DefaultMaxRetryAttempts.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	// MaxRetryAfter is the longest Retry-After the client agrees to wait. Zero means no limit.
	MaxRetryAfter config.TimeDuration `mapstructure:"maxRetryAfter" yaml:"maxRetryAfter" json:"maxRetryAfter"`

	// Policy is used when the response doesn't contain Retry-After.
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// Set sets retries configuration values from config.DataProvider.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, errors.New("cannot be negative"))
	}
	maxRetryAfter, err := dp.GetDuration(cfgKeyRetriesMaxRetryAfter)
	if err != nil {
		return err
	}
	if maxRetryAfter < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxRetryAfter, errors.New("cannot be negative"))
	}
	c.MaxRetryAfter = config.TimeDuration(maxRetryAfter)
	return c.Policy.Set(dp)
}

// GetPolicy returns a retry policy based on the configured strategy.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	if c.Policy.Strategy == RetryPolicyConstant {
		return retry.NewConstantBackoffPolicy(c.Policy.ConstantBackoffInterval.Duration(), 0)
	}
	return retry.NewExponentialBackoffPolicyWithMultiplier(
		c.Policy.ExponentialBackoffInitialInterval.Duration(), c.Policy.ExponentialBackoffMultiplier, 0)
}

// PolicyConfig represents configuration of the backoff policy.
type PolicyConfig struct {
	// Strategy is one of: exponential, constant.
	Strategy string `mapstructure:"strategy" yaml:"strategy" json:"strategy"`

	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"` //nolint:lll
	ExponentialBackoffMultiplier      float64             `mapstructure:"exponentialBackoffMultiplier" yaml:"exponentialBackoffMultiplier" json:"exponentialBackoffMultiplier"`                //nolint:lll
	ConstantBackoffInterval           config.TimeDuration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"`                               //nolint:lll
}

// Set sets backoff policy configuration values from config.DataProvider.
func (c *PolicyConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Strategy, err = dp.GetString(cfgKeyRetriesPolicyStrategy); err != nil {
		return err
	}
	if c.Strategy != RetryPolicyExponential && c.Strategy != RetryPolicyConstant {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyStrategy, fmt.Errorf(
			"unknown value %q, should be one of: [%s, %s]", c.Strategy, RetryPolicyExponential, RetryPolicyConstant))
	}

	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyRetriesPolicyExponentialInitialInterval, &c.ExponentialBackoffInitialInterval},
		{cfgKeyRetriesPolicyConstantInterval, &c.ConstantBackoffInterval},
	} {
		interval, intervalErr := dp.GetDuration(item.key)
		if intervalErr != nil {
			return intervalErr
		}
		if interval <= 0 {
			return dp.WrapKeyErr(item.key, errors.New("should be positive"))
		}
		*item.dst = config.TimeDuration(interval)
	}

	if c.ExponentialBackoffMultiplier, err = dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier); err != nil {
		return err
	}
	if c.ExponentialBackoffMultiplier <= 1 {
		return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, errors.New("should be greater than 1"))
	}
	return nil
}

// RateLimitConfig represents configuration of the client side rate limiting.
// It allows a batch client to stay within the server quota instead of being rejected.
type RateLimitConfig struct {
	Enabled        bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	LimitPerMinute int                 `mapstructure:"limitPerMinute" yaml:"limitPerMinute" json:"limitPerMinute"`
	Burst          int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout    config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *RateLimitConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.LimitPerMinute, err = dp.GetInt(cfgKeyRateLimitsLimitPerMinute); err != nil {
		return err
	}
	if c.LimitPerMinute <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimitPerMinute, errors.New("should be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("should be positive"))
	}
	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, errors.New("cannot be negative"))
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

// LogConfig represents configuration of outgoing requests logging.
type LogConfig struct {
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`

	// SlowRequestThreshold makes requests faster than it not logged. Zero means all requests are logged.
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set sets logging configuration values from config.DataProvider.
func (c *LogConfig) Set(dp config.DataProvider) error {
	mode, err := dp.GetString(cfgKeyLogMode)
	if err != nil {
		return err
	}
	if !LoggingMode(mode).IsValid() {
		return dp.WrapKeyErr(cfgKeyLogMode, fmt.Errorf("unknown value %q, should be one of: [%s, %s, %s]",
			mode, LoggingModeNone, LoggingModeAll, LoggingModeFailed))
	}
	c.Mode = LoggingMode(mode)

	threshold, err := dp.GetDuration(cfgKeyLogSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, errors.New("cannot be negative"))
	}
	c.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

// DNSConfig represents configuration of name resolution for the validation service host.
type DNSConfig struct {
	// Servers is a list of name servers (host:port) queried in turn. The system resolver is used if it's empty.
	Servers []string `mapstructure:"servers" yaml:"servers" json:"servers"`

	DialTimeout config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
}

// Set sets DNS configuration values from config.DataProvider.
func (c *DNSConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Servers, err = dp.GetStringSlice(cfgKeyDNSServers); err != nil {
		return err
	}
	for _, server := range c.Servers {
		if _, _, splitErr := net.SplitHostPort(server); splitErr != nil {
			return dp.WrapKeyErr(cfgKeyDNSServers, splitErr)
		}
	}
	dialTimeout, err := dp.GetDuration(cfgKeyDNSDialTimeout)
	if err != nil {
		return err
	}
	if dialTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyDNSDialTimeout, errors.New("cannot be negative"))
	}
	c.DialTimeout = config.TimeDuration(dialTimeout)
	return nil
}
