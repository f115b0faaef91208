/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"strings"
	"time"
)

// KeyPrefixedDataProvider scopes every key of the underlying DataProvider by a section prefix,
// so "capacity" of the "queue" section is looked up as "queue.capacity".
type KeyPrefixedDataProvider struct {
	dp     DataProvider
	prefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(dp DataProvider, prefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{dp: dp, prefix: prefix}
}

func (kp *KeyPrefixedDataProvider) key(k string) string {
	return strings.Trim(kp.prefix+"."+k, ".")
}

// UseEnvVars is not scoped, env prefixes apply to the whole tree.
func (kp *KeyPrefixedDataProvider) UseEnvVars(prefix string) { kp.dp.UseEnvVars(prefix) }

func (kp *KeyPrefixedDataProvider) BindEnv(k string, envVars ...string) error {
	return kp.dp.BindEnv(kp.key(k), envVars...)
}

func (kp *KeyPrefixedDataProvider) Set(k string, value interface{}) { kp.dp.Set(kp.key(k), value) }

func (kp *KeyPrefixedDataProvider) SetDefault(k string, value interface{}) {
	kp.dp.SetDefault(kp.key(k), value)
}

// SetFromFile and SetFromReader load the whole tree, the prefix is not applied.
func (kp *KeyPrefixedDataProvider) SetFromFile(path string, dataType DataType) error {
	return kp.dp.SetFromFile(path, dataType)
}

func (kp *KeyPrefixedDataProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	return kp.dp.SetFromReader(reader, dataType)
}

func (kp *KeyPrefixedDataProvider) GetBool(k string) (bool, error)   { return kp.dp.GetBool(kp.key(k)) }
func (kp *KeyPrefixedDataProvider) GetInt(k string) (int, error)     { return kp.dp.GetInt(kp.key(k)) }
func (kp *KeyPrefixedDataProvider) GetString(k string) (string, error) {
	return kp.dp.GetString(kp.key(k))
}

func (kp *KeyPrefixedDataProvider) GetFloat64(k string) (float64, error) {
	return kp.dp.GetFloat64(kp.key(k))
}

func (kp *KeyPrefixedDataProvider) GetStringFromSet(k string, set []string, ignoreCase bool) (string, error) {
	return kp.dp.GetStringFromSet(kp.key(k), set, ignoreCase)
}

func (kp *KeyPrefixedDataProvider) GetStringSlice(k string) ([]string, error) {
	return kp.dp.GetStringSlice(kp.key(k))
}

func (kp *KeyPrefixedDataProvider) GetDuration(k string) (time.Duration, error) {
	return kp.dp.GetDuration(kp.key(k))
}

func (kp *KeyPrefixedDataProvider) GetByteSize(k string) (ByteSize, error) {
	return kp.dp.GetByteSize(kp.key(k))
}

func (kp *KeyPrefixedDataProvider) UnmarshalKey(k string, out interface{}) error {
	return kp.dp.UnmarshalKey(kp.key(k), out)
}

// WrapKeyErr reports the full key, including the prefix.
func (kp *KeyPrefixedDataProvider) WrapKeyErr(k string, err error) error {
	return kp.dp.WrapKeyErr(kp.key(k), err)
}
