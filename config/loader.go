/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
)

// Config is implemented by configuration objects of the library packages (ratelimit, log, httpserver and others).
// SetProviderDefaults registers default values, Set reads and validates the values.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose parameters are nested under a key
// (e.g. "rateLimit"). Loader passes such objects a DataProvider that adds the prefix to every key.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// Loader reads configuration data once and fills a set of configuration objects from it.
type Loader struct {
	DataProvider DataProvider
}

// NewLoader creates a new Loader over the given DataProvider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// NewDefaultLoader creates a Loader backed by viper. Environment variables with the given prefix
// override values from files and readers ("rateLimit.warnOnly" -> <PREFIX>_RATELIMIT_WARNONLY).
func NewDefaultLoader(envVarsPrefix string) *Loader {
	adapter := NewViperAdapter()
	adapter.UseEnvVars(envVarsPrefix)
	return NewLoader(adapter)
}

// LoadFromFile reads the file and fills configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return fmt.Errorf("read configuration file %q: %w", path, err)
	}
	return l.fill(append([]Config{cfg}, cfgs...))
}

// LoadFromReader reads the data and fills configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}
	return l.fill(append([]Config{cfg}, cfgs...))
}

// fill registers defaults of all objects before the first Set call.
func (l *Loader) fill(cfgs []Config) error {
	providers := make([]DataProvider, len(cfgs))
	for i, cfg := range cfgs {
		providers[i] = l.DataProvider
		if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
			providers[i] = NewKeyPrefixedDataProvider(l.DataProvider, kp.KeyPrefix())
		}
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range cfgs {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}
