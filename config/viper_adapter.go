/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by viper. Values are converted with spf13/cast.
type ViperAdapter struct {
	v *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{v: viper.New()}
}

// UseEnvVars makes every key readable from an environment variable.
// With prefix "batchproxy" the key "queue.capacity" is read from BATCHPROXY_QUEUE_CAPACITY.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.v.SetEnvPrefix(prefix)
	va.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.v.AutomaticEnv()
}

// BindEnv binds the key to the exact environment variable names. The env prefix is not applied.
func (va *ViperAdapter) BindEnv(key string, envVars ...string) error {
	return WrapKeyErrIfNeeded(key, va.v.BindEnv(append([]string{key}, envVars...)...))
}

// Set overrides the value of the key.
func (va *ViperAdapter) Set(key string, value interface{}) { va.v.Set(key, value) }

// SetDefault sets the value used when neither data nor environment provide the key.
func (va *ViperAdapter) SetDefault(key string, value interface{}) { va.v.SetDefault(key, value) }

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.v.SetConfigType(string(dataType))
	va.v.SetConfigFile(path)
	return va.v.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.v.SetConfigType(string(dataType))
	return va.v.ReadConfig(reader)
}

// getAs converts the raw value of the key. Missing keys produce the zero value.
func getAs[T any](va *ViperAdapter, key string, conv func(interface{}) (T, error)) (T, error) {
	raw := va.v.Get(key)
	if raw == nil {
		var zero T
		return zero, nil
	}
	res, err := conv(raw)
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) { return getAs(va, key, cast.ToBoolE) }

// GetInt returns the value of the key as an int.
func (va *ViperAdapter) GetInt(key string) (int, error) { return getAs(va, key, cast.ToIntE) }

// GetFloat64 returns the value of the key as a float64.
func (va *ViperAdapter) GetFloat64(key string) (float64, error) { return getAs(va, key, cast.ToFloat64E) }

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) { return getAs(va, key, cast.ToStringE) }

// GetStringSlice returns the value of the key as a slice of strings.
func (va *ViperAdapter) GetStringSlice(key string) ([]string, error) {
	return getAs(va, key, cast.ToStringSliceE)
}

// GetDuration returns the value of the key as a duration ("5s", "1m30s" or nanoseconds).
func (va *ViperAdapter) GetDuration(key string) (time.Duration, error) {
	return getAs(va, key, cast.ToDurationE)
}

// GetByteSize returns the value of the key as a size in bytes.
// Both integers and human-readable strings ("1M", "16KiB") are accepted.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	return getAs(va, key, toByteSize)
}

func toByteSize(raw interface{}) (ByteSize, error) {
	switch v := raw.(type) {
	case ByteSize:
		return v, nil
	case string:
		return parseByteSizeFromString(v)
	case float32, float64:
		f := cast.ToFloat64(v)
		if f < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %v", f)
		}
		return ByteSize(uint64(f)), nil
	}
	num, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, fmt.Errorf("unsupported type for byte size: %T", raw)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return ByteSize(num), nil
}

// GetStringFromSet returns the value of the key if it is one of the set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// UnmarshalKey decodes the value of the key into out with weakly typed input,
// so "10s" becomes a time.Duration and "a,b" becomes a []string.
func (va *ViperAdapter) UnmarshalKey(key string, out interface{}) error {
	raw := va.v.Get(key)
	if raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return WrapKeyErr(key, err)
	}
	return WrapKeyErrIfNeeded(key, dec.Decode(raw))
}

// WrapKeyErr prefixes the error with the key.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error { return WrapKeyErr(key, err) }
