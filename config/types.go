/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes used in configuration structures (request body and message limits).
// Both integers and human-readable strings ("16M", "64K", "512Ki") are accepted.
// It's always encoded as a human-readable string.
type ByteSize uint64

// ParseByteSize parses a size in bytes from an integer or a human-readable string.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	}
	// bytefmt doesn't know binary suffixes, but its units are binary anyway.
	if len(s) > 2 && strings.HasSuffix(s, "i") && strings.ContainsRune("KMGTPE", rune(s[len(s)-2])) {
		s = s[:len(s)-1]
	}
	num, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}

func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler. Both numbers and strings are accepted.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	text, err := jsonScalarText(data)
	if err != nil {
		return err
	}
	return b.UnmarshalText([]byte(text))
}

// MarshalJSON implements json.Marshaler.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid byte size format: line %d: scalar is expected", value.Line)
	}
	return b.UnmarshalText([]byte(value.Value))
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// TimeDuration is a duration used in configuration structures (timeouts, intervals).
// Integers are treated as nanoseconds, strings are parsed by time.ParseDuration ("1m30s").
type TimeDuration time.Duration

// ParseTimeDuration parses a non-negative duration from an integer number of nanoseconds or a human-readable string.
func ParseTimeDuration(s string) (TimeDuration, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return TimeDuration(num), nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time duration format (%s): %w", s, err)
	}
	return TimeDuration(dur), nil
}

// Duration converts the value to time.Duration.
func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d)
}

func (d TimeDuration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeDuration) UnmarshalText(text []byte) error {
	dur, err := ParseTimeDuration(string(text))
	if err != nil {
		return err
	}
	*d = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeDuration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler. Both numbers and strings are accepted.
func (d *TimeDuration) UnmarshalJSON(data []byte) error {
	text, err := jsonScalarText(data)
	if err != nil {
		return err
	}
	return d.UnmarshalText([]byte(text))
}

// MarshalJSON implements json.Marshaler.
func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid time duration format: line %d: scalar is expected", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalYAML implements yaml.Marshaler.
func (d TimeDuration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// jsonScalarText returns the text of a JSON number or string.
func jsonScalarText(data []byte) (string, error) {
	if len(data) == 0 || data[0] != '"' {
		return string(data), nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return s, nil
}
