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

// ByteSize is a size in bytes. Config files may use integers or strings like "16K", "1MB" or "2Mi".
type ByteSize uint64

// ParseByteSize parses an integer or a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %d", num)
		}
		return ByteSize(num), nil
	}
	return parseByteSizeFromString(s)
}

func parseByteSizeFromString(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return 0, nil
	}
	// bytefmt knows "K" and "KB" but not the "Ki" spelling used by k8s.
	if len(v) > 2 && v[len(v)-1] == 'i' && strings.ContainsRune("KMGTPE", rune(v[len(v)-2])) {
		v = v[:len(v)-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}

func (b ByteSize) String() string { return bytefmt.ByteSize(uint64(b)) }

// UnmarshalJSON accepts both numbers and strings.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.set(strings.Trim(string(data), `"`))
}

// UnmarshalYAML accepts both numbers and strings.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid byte size format: %v", value)
	}
	return b.set(value.Value)
}

func (b *ByteSize) set(s string) error {
	bs, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = bs
	return nil
}

// MarshalYAML renders the size in human-readable form.
func (b ByteSize) MarshalYAML() (interface{}, error) { return b.String(), nil }

// TimeDuration is a time.Duration rendered as "1m30s" in YAML and JSON.
// Plain integers are read as nanoseconds.
type TimeDuration time.Duration

func (d TimeDuration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts both integers and duration strings.
func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid time duration format: %v", value)
	}
	if num, err := strconv.ParseInt(value.Value, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*d = TimeDuration(num)
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid time duration format (%s): %w", value.Value, err)
	}
	*d = TimeDuration(dur)
	return nil
}

// MarshalYAML renders the duration in human-readable form.
func (d TimeDuration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// MarshalJSON renders the duration in human-readable form.
func (d TimeDuration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
