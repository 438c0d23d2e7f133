/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"

	"github.com/acronis/go-validatorkit/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyEnabled           = "enabled"
	cfgKeyWarnOnly          = "warnOnly"
	cfgKeyIPHeader          = "ipHeader"
	cfgKeyCapacity          = "capacity"
	cfgKeyExcludedAddresses = "excludedAddresses"
)

// Config represents a set of configuration parameters for validation rate limiting.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Enabled turns rate limiting on. When it is false every request proceeds.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// WarnOnly makes exceeded quotas only logged, requests are never blocked.
	WarnOnly bool `mapstructure:"warnOnly" yaml:"warnOnly" json:"warnOnly"`

	// IPHeader is a name of the HTTP header (or gRPC metadata key) set by a reverse proxy
	// that carries the original client address (e.g. X-Forwarded-For).
	// The value is used as is.
	IPHeader string `mapstructure:"ipHeader" yaml:"ipHeader" json:"ipHeader"`

	// Capacity maps a policy configuration key to the number of requests allowed per minute.
	// Missing and non-positive values are replaced by the policy default.
	Capacity map[string]int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`

	// ExcludedAddresses is a list of glob patterns (e.g. "10.0.0.*").
	// Requests from matching client addresses are never rate limited.
	ExcludedAddresses []string `mapstructure:"excludedAddresses" yaml:"excludedAddresses" json:"excludedAddresses"`

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
// This prefix will be used by config.Loader.
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

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for rate limiting in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyWarnOnly, false)
	dp.SetDefault(cfgKeyIPHeader, "")
}

// Set sets rate limiting configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.WarnOnly, err = dp.GetBool(cfgKeyWarnOnly); err != nil {
		return err
	}
	if c.IPHeader, err = dp.GetString(cfgKeyIPHeader); err != nil {
		return err
	}
	if c.ExcludedAddresses, err = dp.GetStringSlice(cfgKeyExcludedAddresses); err != nil {
		return err
	}
	return c.setCapacity(dp)
}

// setCapacity reads the capacity map. Entries without a value are skipped,
// so they are reported as missing by the resolver.
func (c *Config) setCapacity(dp config.DataProvider) error {
	c.Capacity = make(map[string]int)
	rawCapacity := dp.Get(cfgKeyCapacity)
	if rawCapacity == nil {
		return nil
	}
	capacityMap, err := cast.ToStringMapE(rawCapacity)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyCapacity, err)
	}
	for key, rawVal := range capacityMap {
		if rawVal == nil {
			continue
		}
		var val int
		if decodeErr := mapstructure.WeakDecode(rawVal, &val); decodeErr != nil {
			return dp.WrapKeyErr(cfgKeyCapacity+"."+key, fmt.Errorf("capacity must be an integer: %w", decodeErr))
		}
		c.Capacity[key] = val
	}
	return nil
}
