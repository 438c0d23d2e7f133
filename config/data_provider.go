/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// DataType is a type of data format in which configuration may be described.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataTypeFromPath returns the data format of the configuration file by its extension.
func DataTypeFromPath(path string) (DataType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return DataTypeYAML, nil
	case ".json":
		return DataTypeJSON, nil
	}
	return "", fmt.Errorf("unsupported configuration file extension %q", filepath.Ext(path))
}

// DataSource fills a configuration store from files, readers and environment variables.
type DataSource interface {
	UseEnvVars(prefix string)
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	Set(key string, value interface{})
	SetDefault(key string, value interface{})
}

// ValueGetter reads typed values by key. Getters return an error wrapped with the key
// if the stored value cannot be converted to the requested type.
type ValueGetter interface {
	IsSet(key string) bool
	Get(key string) interface{}

	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetSizeInBytes(key string) (ByteSize, error)
}

// DataProvider is the configuration store that Config implementations read themselves from.
type DataProvider interface {
	DataSource
	ValueGetter

	// WrapKeyErr adds the full key (including any prefix) to err.
	WrapKeyErr(key string, err error) error
}

// KeyError is an error related to the particular configuration key.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

// Unwrap returns the next error in the error chain.
func (e *KeyError) Unwrap() error {
	return e.Err
}

// WrapKeyErrIfNeeded is WrapKeyErr that keeps nil as is.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// WrapKeyErr wraps err into KeyError.
func WrapKeyErr(key string, err error) error {
	return &KeyError{Key: key, Err: err}
}
