/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package batch

import (
	"fmt"
	"time"

	"github.com/acronis/go-batchproxy/config"
)

const (
	cfgDefaultKeyPrefix      = "batch"
	cfgDefaultQueueKeyPrefix = "queue"
)

const (
	cfgKeyWorkers        = "workers"
	cfgKeyDefaultTimeout = "defaultTimeout"
	cfgKeyMaxTimeout     = "maxTimeout"
	cfgKeyRetryTransient = "retryTransient"

	cfgKeyQueueCapacity = "capacity"
)

// Default values.
const (
	DefaultWorkers        = 64
	DefaultTimeout        = 30 * time.Second
	DefaultMaxTimeout     = 5 * time.Minute
	DefaultQueueCapacity  = 1024
	DefaultRetryTransient = true
)

// Config represents a set of configuration parameters for the batch orchestrator.
type Config struct {
	// Workers is the number of goroutines taking items from the queue.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
	// DefaultTimeout is used for batches without timeout_s.
	DefaultTimeout config.TimeDuration `mapstructure:"defaultTimeout" yaml:"defaultTimeout" json:"defaultTimeout"`
	// MaxTimeout is the upper bound of the batch timeout.
	MaxTimeout config.TimeDuration `mapstructure:"maxTimeout" yaml:"maxTimeout" json:"maxTimeout"`
	// RetryTransient enables a single retry of items whose dispatch failed with a transient network error.
	RetryTransient bool `mapstructure:"retryTransient" yaml:"retryTransient" json:"retryTransient"`
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
		Workers:        DefaultWorkers,
		DefaultTimeout: config.TimeDuration(DefaultTimeout),
		MaxTimeout:     config.TimeDuration(DefaultMaxTimeout),
		RetryTransient: DefaultRetryTransient,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgDefaultKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyWorkers, DefaultWorkers)
	dp.SetDefault(cfgKeyDefaultTimeout, DefaultTimeout)
	dp.SetDefault(cfgKeyMaxTimeout, DefaultMaxTimeout)
	dp.SetDefault(cfgKeyRetryTransient, DefaultRetryTransient)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Workers, err = dp.GetInt(cfgKeyWorkers); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return dp.WrapKeyErr(cfgKeyWorkers, fmt.Errorf("must be positive"))
	}
	defaultTimeout, err := dp.GetDuration(cfgKeyDefaultTimeout)
	if err != nil {
		return err
	}
	if defaultTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyDefaultTimeout, fmt.Errorf("must not be negative"))
	}
	c.DefaultTimeout = config.TimeDuration(defaultTimeout)
	maxTimeout, err := dp.GetDuration(cfgKeyMaxTimeout)
	if err != nil {
		return err
	}
	if maxTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxTimeout, fmt.Errorf("must be positive"))
	}
	if maxTimeout < defaultTimeout {
		return dp.WrapKeyErr(cfgKeyMaxTimeout, fmt.Errorf("must not be less than %s", cfgKeyDefaultTimeout))
	}
	c.MaxTimeout = config.TimeDuration(maxTimeout)
	c.RetryTransient, err = dp.GetBool(cfgKeyRetryTransient)
	return err
}

// QueueConfig represents a set of configuration parameters for the deadline queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
}

var _ config.Config = (*QueueConfig)(nil)
var _ config.KeyPrefixProvider = (*QueueConfig)(nil)

// NewQueueConfig creates a new instance of the QueueConfig.
func NewQueueConfig() *QueueConfig {
	return &QueueConfig{}
}

// NewDefaultQueueConfig creates a new instance of the QueueConfig with default values.
func NewDefaultQueueConfig() *QueueConfig {
	return &QueueConfig{Capacity: DefaultQueueCapacity}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *QueueConfig) KeyPrefix() string {
	return cfgDefaultQueueKeyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *QueueConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQueueCapacity, DefaultQueueCapacity)
}

// Set sets configuration values from config.DataProvider.
func (c *QueueConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Capacity, err = dp.GetInt(cfgKeyQueueCapacity); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return dp.WrapKeyErr(cfgKeyQueueCapacity, fmt.Errorf("must not be negative"))
	}
	return nil
}
