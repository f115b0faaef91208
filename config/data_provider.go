/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"time"
)

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// Source collects raw configuration values: defaults, overrides, files, readers and environment variables.
type Source interface {
	UseEnvVars(prefix string)
	BindEnv(key string, envVars ...string) error
	Set(key string, value interface{})
	SetDefault(key string, value interface{})
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error
}

// Getter reads typed values by key. Errors returned by getters already contain the key.
type Getter interface {
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)
	// UnmarshalKey decodes the value of a nested section (map, struct or slice) into out.
	UnmarshalKey(key string, out interface{}) error
	WrapKeyErr(key string, err error) error
}

// DataProvider is what configuration sections work with.
type DataProvider interface {
	Source
	Getter
}

// WrapKeyErrIfNeeded is WrapKeyErr for possibly nil errors.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// WrapKeyErr prefixes the error with the configuration key it relates to.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}
