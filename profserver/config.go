/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"errors"

	"github.com/acronis/go-validatorkit/config"
)

const cfgDefaultKeyPrefix = "profServer"

const (
	cfgKeyEnabled              = "enabled"
	cfgKeyAddress              = "address"
	cfgKeyBlockProfileRate     = "blockProfileRate"
	cfgKeyMutexProfileFraction = "mutexProfileFraction"
)

const defaultAddress = "127.0.0.1:8081"

// Config represents a set of configuration parameters for profiling server.
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`

	// BlockProfileRate is passed to runtime.SetBlockProfileRate when the server starts. Zero keeps it off.
	BlockProfileRate int `mapstructure:"blockProfileRate" yaml:"blockProfileRate" json:"blockProfileRate"`

	// MutexProfileFraction is passed to runtime.SetMutexProfileFraction when the server starts.
	// It shows contention on the client buckets store. Zero keeps it off.
	MutexProfileFraction int `mapstructure:"mutexProfileFraction" yaml:"mutexProfileFraction" json:"mutexProfileFraction"`

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
// Profiling is disabled by default.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = defaultAddress
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for profiling server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAddress, defaultAddress)
}

// Set sets profiling server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("cannot be empty when profiling server is enabled"))
	}

	for key, dst := range map[string]*int{
		cfgKeyBlockProfileRate:     &c.BlockProfileRate,
		cfgKeyMutexProfileFraction: &c.MutexProfileFraction,
	} {
		if *dst, err = dp.GetInt(key); err != nil {
			return err
		}
		if *dst < 0 {
			return dp.WrapKeyErr(key, errors.New("cannot be negative"))
		}
	}
	return nil
}
