/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"

	"github.com/acronis/go-batchproxy/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyEnabled = "enabled"
	cfgKeyAlg     = "alg"
	cfgKeyRate    = "rate"
	cfgKeyBurst   = "burst"
	cfgKeyMaxKeys = "maxKeys"
	cfgKeyDryRun  = "dryRun"
)

// Default values.
const (
	DefaultAlg     = AlgLeakyBucket
	DefaultRate    = "100/s"
	DefaultMaxKeys = 10000
)

// Config represents a set of configuration parameters for the per-client rate limit of batch requests.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg     Alg  `mapstructure:"alg" yaml:"alg" json:"alg"`
	Rate    Rate `mapstructure:"rate" yaml:"rate" json:"rate"`
	// Burst is used by the leaky bucket algorithm only.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`
	// MaxKeys is the maximum number of tracked clients. Zero means a single limit shared by all clients.
	MaxKeys int `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	// DryRun logs requests that exceed the limit without rejecting them.
	DryRun bool `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAlg, string(DefaultAlg))
	dp.SetDefault(cfgKeyRate, DefaultRate)
	dp.SetDefault(cfgKeyBurst, 0)
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
	dp.SetDefault(cfgKeyDryRun, false)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	alg, err := dp.GetStringFromSet(cfgKeyAlg, []string{string(AlgLeakyBucket), string(AlgSlidingWindow)}, true)
	if err != nil {
		return err
	}
	c.Alg = AlgLeakyBucket
	if strings.EqualFold(alg, string(AlgSlidingWindow)) {
		c.Alg = AlgSlidingWindow
	}
	rateStr, err := dp.GetString(cfgKeyRate)
	if err != nil {
		return err
	}
	if c.Rate, err = ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyRate, err)
	}
	if c.Burst, err = dp.GetInt(cfgKeyBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyBurst, fmt.Errorf("must not be negative"))
	}
	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("must not be negative"))
	}
	if c.DryRun, err = dp.GetBool(cfgKeyDryRun); err != nil {
		return err
	}
	return nil
}
