/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/acronis/go-validatorkit/config"
	"github.com/acronis/go-validatorkit/httpserver/middleware"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyAddress                     = "address"
	cfgKeyTimeoutsWrite               = "timeouts.write"
	cfgKeyTimeoutsRead                = "timeouts.read"
	cfgKeyTimeoutsReadHeader          = "timeouts.readHeader"
	cfgKeyTimeoutsIdle                = "timeouts.idle"
	cfgKeyTimeoutsShutdown            = "timeouts.shutdown"
	cfgKeyLimitsMaxConcurrentRequests = "limits.maxConcurrentRequests"
	cfgKeyLimitsMaxRequestBodySize    = "limits.maxRequestBodySize"
	cfgKeyRateLimitResponseStatusCode = "rateLimit.responseStatusCode"
	cfgKeyRateLimitSOAPOperation      = "rateLimit.soap.operation"
)

const (
	defaultAddress                     = ":8080"
	defaultTimeoutsWrite               = time.Minute
	defaultTimeoutsRead                = time.Second * 15
	defaultTimeoutsReadHeader          = time.Second * 10
	defaultTimeoutsIdle                = time.Minute
	defaultTimeoutsShutdown            = time.Second * 5
	defaultLimitsMaxConcurrentRequests = 5000
	defaultRateLimitResponseStatusCode = http.StatusTooManyRequests
)

// Config represents a set of configuration parameters for the validation HTTP server.
type Config struct {
	Address   string          `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits" json:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`

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
	cfg.Address = defaultAddress
	cfg.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(defaultTimeoutsWrite),
		Read:       config.TimeDuration(defaultTimeoutsRead),
		ReadHeader: config.TimeDuration(defaultTimeoutsReadHeader),
		Idle:       config.TimeDuration(defaultTimeoutsIdle),
		Shutdown:   config.TimeDuration(defaultTimeoutsShutdown),
	}
	cfg.Limits.MaxConcurrentRequests = defaultLimitsMaxConcurrentRequests
	cfg.RateLimit = RateLimitConfig{
		ResponseStatusCode: defaultRateLimitResponseStatusCode,
		SOAP:               SOAPRateLimitConfig{Operation: middleware.DefaultSOAPOperationName},
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the HTTP server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, defaultAddress)

	dp.SetDefault(cfgKeyTimeoutsWrite, defaultTimeoutsWrite)
	dp.SetDefault(cfgKeyTimeoutsRead, defaultTimeoutsRead)
	dp.SetDefault(cfgKeyTimeoutsReadHeader, defaultTimeoutsReadHeader)
	dp.SetDefault(cfgKeyTimeoutsIdle, defaultTimeoutsIdle)
	dp.SetDefault(cfgKeyTimeoutsShutdown, defaultTimeoutsShutdown)

	dp.SetDefault(cfgKeyLimitsMaxConcurrentRequests, defaultLimitsMaxConcurrentRequests)

	dp.SetDefault(cfgKeyRateLimitResponseStatusCode, defaultRateLimitResponseStatusCode)
	dp.SetDefault(cfgKeyRateLimitSOAPOperation, middleware.DefaultSOAPOperationName)
}

// Set sets HTTP server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty"))
	}
	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	return c.RateLimit.Set(dp)
}

// TimeoutsConfig represents a set of configuration parameters for the HTTP server relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyTimeoutsWrite, &t.Write},
		{cfgKeyTimeoutsRead, &t.Read},
		{cfgKeyTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyTimeoutsIdle, &t.Idle},
		{cfgKeyTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, errors.New("cannot be negative"))
		}
		*item.dst = config.TimeDuration(dur)
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for the HTTP server relating to limits.
type LimitsConfig struct {
	// MaxConcurrentRequests is the maximum number of requests that are processed concurrently.
	// Zero means no limit. /metrics and /healthz are not limited.
	MaxConcurrentRequests int `mapstructure:"maxConcurrentRequests" yaml:"maxConcurrentRequests" json:"maxConcurrentRequests"`

	// MaxRequestBodySize is the maximum size of the request body. Zero means no limit.
	MaxRequestBodySize config.ByteSize `mapstructure:"maxRequestBodySize" yaml:"maxRequestBodySize" json:"maxRequestBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error

	if l.MaxConcurrentRequests, err = dp.GetInt(cfgKeyLimitsMaxConcurrentRequests); err != nil {
		return err
	}
	if l.MaxConcurrentRequests < 0 {
		return dp.WrapKeyErr(cfgKeyLimitsMaxConcurrentRequests, errors.New("cannot be negative"))
	}

	if l.MaxRequestBodySize, err = dp.GetSizeInBytes(cfgKeyLimitsMaxRequestBodySize); err != nil {
		return err
	}
	return nil
}

// RateLimitConfig represents configuration of the validation rate limit on the HTTP surfaces.
// Capacities and client identification are configured in ratelimit.Config.
type RateLimitConfig struct {
	// ResponseStatusCode is used for rejected UI upload and REST API requests.
	ResponseStatusCode int `mapstructure:"responseStatusCode" yaml:"responseStatusCode" json:"responseStatusCode"`

	SOAP SOAPRateLimitConfig `mapstructure:"soap" yaml:"soap" json:"soap"`
}

// SOAPRateLimitConfig represents configuration of the validation rate limit for SOAP requests.
type SOAPRateLimitConfig struct {
	// Operation is the local name of the rate limited SOAP operation. It's matched case-sensitively.
	// The decoded part of the envelope is bounded by Limits.MaxRequestBodySize.
	Operation string `mapstructure:"operation" yaml:"operation" json:"operation"`
}

// Set sets rate limit configuration values from config.DataProvider.
func (r *RateLimitConfig) Set(dp config.DataProvider) error {
	var err error

	if r.ResponseStatusCode, err = dp.GetInt(cfgKeyRateLimitResponseStatusCode); err != nil {
		return err
	}
	if r.ResponseStatusCode < 400 || r.ResponseStatusCode > 599 {
		return dp.WrapKeyErr(cfgKeyRateLimitResponseStatusCode, errors.New("should be an HTTP error status code (4xx or 5xx)"))
	}

	if r.SOAP.Operation, err = dp.GetString(cfgKeyRateLimitSOAPOperation); err != nil {
		return err
	}
	if r.SOAP.Operation == "" {
		return dp.WrapKeyErr(cfgKeyRateLimitSOAPOperation, errors.New("cannot be empty"))
	}
	return nil
}
