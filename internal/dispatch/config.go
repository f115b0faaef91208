/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/acronis/go-batchproxy/config"
	"github.com/acronis/go-batchproxy/httpclient"
)

const (
	cfgDefaultKeyPrefix     = "dispatch"
	cfgDefaultPoolKeyPrefix = "pool"
)

const (
	cfgKeyMaxResponseSize = "maxResponseSize"
	cfgKeyConnectTimeout  = "connectTimeout"
	cfgKeyIdleConnTimeout = "idleConnTimeout"
	cfgKeyUserAgent       = "userAgent"
	cfgKeyDNSServers      = "dnsServers"
	cfgKeyDNSTimeout      = "dnsTimeout"
	cfgKeyHeaders         = "headers"

	cfgKeyPoolCapacity     = "capacity"
	cfgKeyPoolIdleTimeout  = "idleTimeout"
	cfgKeyPoolReapInterval = "reapInterval"
	cfgKeyPoolCreateRate   = "createRate"
	cfgKeyPoolCreateBurst  = "createBurst"
)

// Default values.
const (
	DefaultMaxResponseSize = config.ByteSize(16 * 1024)
	DefaultConnectTimeout  = 5 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	DefaultDNSTimeout      = 2 * time.Second

	DefaultPoolCapacity     = 64
	DefaultPoolIdleTimeout  = 90 * time.Second
	DefaultPoolReapInterval = 30 * time.Second
	DefaultPoolCreateBurst  = 1
)

// Config represents a set of configuration parameters for outbound requests.
type Config struct {
	// MaxResponseSize limits the downstream response body. Larger responses are reported as failures.
	MaxResponseSize config.ByteSize     `mapstructure:"maxResponseSize" yaml:"maxResponseSize" json:"maxResponseSize"`
	ConnectTimeout  config.TimeDuration `mapstructure:"connectTimeout" yaml:"connectTimeout" json:"connectTimeout"`
	IdleConnTimeout config.TimeDuration `mapstructure:"idleConnTimeout" yaml:"idleConnTimeout" json:"idleConnTimeout"`
	// UserAgent is set into downstream requests without User-Agent header.
	UserAgent string `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`
	// DNSServers are "host:port" addresses used for resolving downstream hosts instead of the system resolver.
	DNSServers []string            `mapstructure:"dnsServers" yaml:"dnsServers" json:"dnsServers"`
	DNSTimeout config.TimeDuration `mapstructure:"dnsTimeout" yaml:"dnsTimeout" json:"dnsTimeout"`
	// Headers are added to every downstream request that does not carry them already.
	Headers map[string]string `mapstructure:"headers" yaml:"headers" json:"headers"`

	// Client configures the round trippers of every pooled connection.
	// Its keys live in the same section.
	Client httpclient.Config `mapstructure:",squash" yaml:",inline" json:"client"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		MaxResponseSize: DefaultMaxResponseSize,
		ConnectTimeout:  config.TimeDuration(DefaultConnectTimeout),
		IdleConnTimeout: config.TimeDuration(DefaultIdleConnTimeout),
		DNSServers:      []string{},
		DNSTimeout:      config.TimeDuration(DefaultDNSTimeout),
		Headers:         map[string]string{},
		Client:          *httpclient.NewDefaultConfig(),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxResponseSize, uint64(DefaultMaxResponseSize))
	dp.SetDefault(cfgKeyConnectTimeout, DefaultConnectTimeout)
	dp.SetDefault(cfgKeyIdleConnTimeout, DefaultIdleConnTimeout)
	dp.SetDefault(cfgKeyUserAgent, "")
	dp.SetDefault(cfgKeyDNSServers, []string{})
	dp.SetDefault(cfgKeyDNSTimeout, DefaultDNSTimeout)
	dp.SetDefault(cfgKeyHeaders, map[string]string{})
	c.Client.SetProviderDefaults(dp)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.MaxResponseSize, err = dp.GetByteSize(cfgKeyMaxResponseSize); err != nil {
		return err
	}
	if c.MaxResponseSize == 0 {
		return dp.WrapKeyErr(cfgKeyMaxResponseSize, fmt.Errorf("must be positive"))
	}
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyConnectTimeout, &c.ConnectTimeout},
		{cfgKeyIdleConnTimeout, &c.IdleConnTimeout},
		{cfgKeyDNSTimeout, &c.DNSTimeout},
	} {
		dur, durErr := dp.GetDuration(item.key)
		if durErr != nil {
			return durErr
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("must not be negative"))
		}
		*item.dst = config.TimeDuration(dur)
	}
	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if c.DNSServers, err = dp.GetStringSlice(cfgKeyDNSServers); err != nil {
		return err
	}
	for _, addr := range c.DNSServers {
		if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
			return dp.WrapKeyErr(cfgKeyDNSServers, fmt.Errorf("invalid address %q: %w", addr, splitErr))
		}
	}
	c.Headers = map[string]string{}
	if err = dp.UnmarshalKey(cfgKeyHeaders, &c.Headers); err != nil {
		return err
	}
	for name := range c.Headers {
		if strings.TrimSpace(name) == "" || strings.EqualFold(name, "Host") {
			return dp.WrapKeyErr(cfgKeyHeaders, fmt.Errorf("header %q is not allowed", name))
		}
	}
	return c.Client.Set(dp)
}

// PoolConfig represents a set of configuration parameters for the connection pool.
type PoolConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	// IdleTimeout is the age after which idle connections are closed by the reaper. Zero disables reaping.
	IdleTimeout  config.TimeDuration `mapstructure:"idleTimeout" yaml:"idleTimeout" json:"idleTimeout"`
	ReapInterval config.TimeDuration `mapstructure:"reapInterval" yaml:"reapInterval" json:"reapInterval"`
	// CreateRate limits how many connections per second may be created. Zero means no limit.
	CreateRate  float64 `mapstructure:"createRate" yaml:"createRate" json:"createRate"`
	CreateBurst int     `mapstructure:"createBurst" yaml:"createBurst" json:"createBurst"`
}

var _ config.Config = (*PoolConfig)(nil)
var _ config.KeyPrefixProvider = (*PoolConfig)(nil)

// NewPoolConfig creates a new instance of the PoolConfig.
func NewPoolConfig() *PoolConfig {
	return &PoolConfig{}
}

// NewDefaultPoolConfig creates a new instance of the PoolConfig with default values.
func NewDefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Capacity:     DefaultPoolCapacity,
		IdleTimeout:  config.TimeDuration(DefaultPoolIdleTimeout),
		ReapInterval: config.TimeDuration(DefaultPoolReapInterval),
		CreateBurst:  DefaultPoolCreateBurst,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *PoolConfig) KeyPrefix() string {
	return cfgDefaultPoolKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *PoolConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPoolCapacity, DefaultPoolCapacity)
	dp.SetDefault(cfgKeyPoolIdleTimeout, DefaultPoolIdleTimeout)
	dp.SetDefault(cfgKeyPoolReapInterval, DefaultPoolReapInterval)
	dp.SetDefault(cfgKeyPoolCreateRate, 0)
	dp.SetDefault(cfgKeyPoolCreateBurst, DefaultPoolCreateBurst)
}

// Set sets configuration values from config.DataProvider.
func (c *PoolConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Capacity, err = dp.GetInt(cfgKeyPoolCapacity); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return dp.WrapKeyErr(cfgKeyPoolCapacity, fmt.Errorf("must not be negative"))
	}
	idleTimeout, err := dp.GetDuration(cfgKeyPoolIdleTimeout)
	if err != nil {
		return err
	}
	if idleTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyPoolIdleTimeout, fmt.Errorf("must not be negative"))
	}
	c.IdleTimeout = config.TimeDuration(idleTimeout)
	reapInterval, err := dp.GetDuration(cfgKeyPoolReapInterval)
	if err != nil {
		return err
	}
	if reapInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyPoolReapInterval, fmt.Errorf("must be positive"))
	}
	c.ReapInterval = config.TimeDuration(reapInterval)
	if c.CreateRate, err = dp.GetFloat64(cfgKeyPoolCreateRate); err != nil {
		return err
	}
	if c.CreateRate < 0 {
		return dp.WrapKeyErr(cfgKeyPoolCreateRate, fmt.Errorf("must not be negative"))
	}
	if c.CreateBurst, err = dp.GetInt(cfgKeyPoolCreateBurst); err != nil {
		return err
	}
	if c.CreateRate > 0 && c.CreateBurst <= 0 {
		return dp.WrapKeyErr(cfgKeyPoolCreateBurst, fmt.Errorf("must be positive when createRate is set"))
	}
	return nil
}
