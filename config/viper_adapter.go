/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter implements DataProvider on top of viper.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars lets environment variables override configuration values.
// E.g., if your prefix is "validator", the value of the "rateLimit.enabled" key
// may be overridden by the VALIDATOR_RATELIMIT_ENABLED variable.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.AutomaticEnv()
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.SetEnvPrefix(prefix)
}

// Set sets the value for the key in the override register.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via config or ENV.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// IsSet reports whether the key has a value from any source. Keys are case-insensitive.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.viper.IsSet(key)
}

// Get retrieves any value given the key to use.
func (va *ViperAdapter) Get(key string) interface{} {
	return va.viper.Get(key)
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

// castValue converts the value stored for the key, errors name the key.
func castValue[T any](va *ViperAdapter, key string, castFn func(interface{}) (T, error)) (T, error) {
	res, err := castFn(va.viper.Get(key))
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetInt returns the value as an integer.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return castValue(va, key, cast.ToIntE)
}

// GetFloat64 returns the value as a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) {
	return castValue(va, key, cast.ToFloat64E)
}

// GetString returns the value as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return castValue(va, key, cast.ToStringE)
}

// GetBool returns the value as a bool. Strings like "true", "1", "f" are accepted.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return castValue(va, key, cast.ToBoolE)
}

// GetStringSlice returns the value as a slice of strings, nil if the key is absent.
// A comma-separated string (e.g. from an environment variable) is split into items.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return castValue(va, key, func(val interface{}) ([]string, error) {
		switch v := val.(type) {
		case nil:
			return nil, nil
		case string:
			var items []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			return items, nil
		default:
			return cast.ToStringSliceE(v)
		}
	})
}

// GetStringFromSet returns the value as a string that must be one of set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	match := func(s string) bool { return s == str || (ignoreCase && strings.EqualFold(s, str)) }
	if slices.ContainsFunc(set, match) {
		return str, nil
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetDuration returns the value as a duration ("90s", "5m"). Integers are nanoseconds.
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return castValue(va, key, func(val interface{}) (time.Duration, error) {
		if val == nil {
			return 0, nil
		}
		return cast.ToDurationE(val)
	})
}

// GetSizeInBytes returns the value as a size in bytes.
// Both integers and human-readable strings ("4M", "512K", "1Gi") are supported.
func (va *ViperAdapter) GetSizeInBytes(key string) (ByteSize, error) {
	return castValue(va, key, toByteSize)
}

func toByteSize(val interface{}) (ByteSize, error) {
	switch v := val.(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return ParseByteSize(v)
	}
	num, err := cast.ToInt64E(val)
	if err != nil {
		return 0, err
	}
	if num < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return ByteSize(num), nil
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
