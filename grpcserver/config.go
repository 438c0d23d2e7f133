/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package grpcserver

import (
	"errors"
	"time"

	"github.com/acronis/go-validatorkit/config"
	"github.com/acronis/go-validatorkit/grpcserver/interceptor"
)

const cfgDefaultKeyPrefix = "grpcServer"

const (
	cfgKeyAddress              = "address"
	cfgKeyShutdownTimeout      = "timeouts.shutdown"
	cfgKeyKeepaliveTime        = "keepalive.time"
	cfgKeyKeepaliveTimeout     = "keepalive.timeout"
	cfgKeyKeepaliveMinTime     = "keepalive.minTime"
	cfgKeyMaxConcurrentStreams = "limits.maxConcurrentStreams"
	cfgKeyMaxRecvMessageSize   = "limits.maxRecvMessageSize"
	cfgKeyMaxSendMessageSize   = "limits.maxSendMessageSize"
	cfgKeyRateLimitOperation   = "rateLimit.operation"
)

const (
	defaultAddress            = ":9090"
	defaultShutdownTimeout    = time.Second * 5
	defaultKeepaliveTime      = time.Minute * 2
	defaultKeepaliveTimeout   = time.Second * 20
	defaultMaxRecvMessageSize = 1024 * 1024 * 4 // 4MB
	defaultMaxSendMessageSize = 1024 * 1024 * 4 // 4MB
)

// Config represents a set of configuration parameters for the validation gRPC server.
type Config struct {
	Address   string          `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Keepalive KeepaliveConfig `mapstructure:"keepalive" yaml:"keepalive" json:"keepalive"`
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
	cfg.Timeouts.Shutdown = config.TimeDuration(defaultShutdownTimeout)
	cfg.Keepalive.Time = config.TimeDuration(defaultKeepaliveTime)
	cfg.Keepalive.Timeout = config.TimeDuration(defaultKeepaliveTimeout)
	cfg.Limits.MaxRecvMessageSize = config.ByteSize(defaultMaxRecvMessageSize)
	cfg.Limits.MaxSendMessageSize = config.ByteSize(defaultMaxSendMessageSize)
	cfg.RateLimit.Operation = interceptor.DefaultRateLimitOperationName
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the gRPC server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	for key, val := range map[string]interface{}{
		cfgKeyAddress:            defaultAddress,
		cfgKeyShutdownTimeout:    defaultShutdownTimeout,
		cfgKeyKeepaliveTime:      defaultKeepaliveTime,
		cfgKeyKeepaliveTimeout:   defaultKeepaliveTimeout,
		cfgKeyMaxRecvMessageSize: defaultMaxRecvMessageSize,
		cfgKeyMaxSendMessageSize: defaultMaxSendMessageSize,
		cfgKeyRateLimitOperation: interceptor.DefaultRateLimitOperationName,
	} {
		dp.SetDefault(key, val)
	}
}

// Set sets gRPC server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	setters := []func(config.DataProvider) error{
		c.setAddress,
		c.setDurations,
		c.setLimits,
		c.setRateLimit,
	}
	for _, set := range setters {
		if err := set(dp); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) setAddress(dp config.DataProvider) (err error) {
	c.Address, err = dp.GetString(cfgKeyAddress)
	return err
}

func (c *Config) setDurations(dp config.DataProvider) error {
	durations := []struct {
		key         string
		dst         *config.TimeDuration
		nonNegative bool
	}{
		{cfgKeyShutdownTimeout, &c.Timeouts.Shutdown, true},
		{cfgKeyKeepaliveTime, &c.Keepalive.Time, false},
		{cfgKeyKeepaliveTimeout, &c.Keepalive.Timeout, false},
		{cfgKeyKeepaliveMinTime, &c.Keepalive.MinTime, false},
	}
	for _, d := range durations {
		val, err := dp.GetDuration(d.key)
		if err != nil {
			return err
		}
		if d.nonNegative && val < 0 {
			return dp.WrapKeyErr(d.key, errors.New("cannot be negative"))
		}
		*d.dst = config.TimeDuration(val)
	}
	return nil
}

func (c *Config) setLimits(dp config.DataProvider) error {
	streams, err := dp.GetInt(cfgKeyMaxConcurrentStreams)
	if err != nil {
		return err
	}
	if streams < 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrentStreams, errors.New("cannot be negative"))
	}
	c.Limits.MaxConcurrentStreams = uint32(streams) //nolint:gosec // checked above

	if c.Limits.MaxRecvMessageSize, err = dp.GetSizeInBytes(cfgKeyMaxRecvMessageSize); err != nil {
		return err
	}
	c.Limits.MaxSendMessageSize, err = dp.GetSizeInBytes(cfgKeyMaxSendMessageSize)
	return err
}

func (c *Config) setRateLimit(dp config.DataProvider) (err error) {
	if c.RateLimit.Operation, err = dp.GetString(cfgKeyRateLimitOperation); err != nil {
		return err
	}
	if c.RateLimit.Operation == "" {
		return dp.WrapKeyErr(cfgKeyRateLimitOperation, errors.New("cannot be empty"))
	}
	return nil
}

// TimeoutsConfig contains the gRPC server timeouts.
type TimeoutsConfig struct {
	Shutdown config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// KeepaliveConfig contains server-side keepalive parameters. Zero Time and Timeout keep the grpc-go defaults.
type KeepaliveConfig struct {
	Time    config.TimeDuration `mapstructure:"time" yaml:"time" json:"time"`
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MinTime config.TimeDuration `mapstructure:"minTime" yaml:"minTime" json:"minTime"`
}

// LimitsConfig bounds streams and message sizes.
type LimitsConfig struct {
	// MaxConcurrentStreams is the maximum number of concurrent streams per connection. Zero means no limit.
	MaxConcurrentStreams uint32 `mapstructure:"maxConcurrentStreams" yaml:"maxConcurrentStreams" json:"maxConcurrentStreams"`

	MaxRecvMessageSize config.ByteSize `mapstructure:"maxRecvMessageSize" yaml:"maxRecvMessageSize" json:"maxRecvMessageSize"`
	MaxSendMessageSize config.ByteSize `mapstructure:"maxSendMessageSize" yaml:"maxSendMessageSize" json:"maxSendMessageSize"`
}

// RateLimitConfig selects the rate limited RPC.
type RateLimitConfig struct {
	// Operation is the last segment of the full method name, compared case-insensitively.
	Operation string `mapstructure:"operation" yaml:"operation" json:"operation"`
}
