/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/acronis/go-batchproxy/config"
	"github.com/acronis/go-batchproxy/retry"
)

// Retry policy strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

const (
	cfgKeyTimeout                           = "timeout"
	cfgKeyRetriesEnabled                    = "retries.enabled"
	cfgKeyRetriesMaxAttempts                = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy             = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitial   = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyConstantInterval     = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                 = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                   = "rateLimits.limit"
	cfgKeyRateLimitsBurst                   = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout             = "rateLimits.waitTimeout"
	cfgKeyLoggerEnabled                     = "logger.enabled"
	cfgKeyLoggerMode                        = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold        = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                    = "metrics.enabled"
	defaultRetriesPolicyConstantInterval    = 100 * time.Millisecond
	defaultRetriesPolicyExponentialInterval = DefaultExponentialBackoffInitialInterval
)

// Config represents options for HTTP client configuration.
// It's supposed to be embedded into a parent section, so it has no key prefix of its own.
type Config struct {
	// Timeout limits the whole exchange including reading the response body. Zero means no limit.
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	Retries    RetriesConfig   `mapstructure:"retries" yaml:"retries" json:"retries"`
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`
	Log        LoggerConfig    `mapstructure:"logger" yaml:"logger" json:"logger"`
	Metrics    MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

var _ config.Config = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Retries: RetriesConfig{
			MaxAttempts: DefaultMaxRetryAttempts,
			Policy: PolicyConfig{
				Strategy:                          RetryPolicyExponential,
				ExponentialBackoffInitialInterval: config.TimeDuration(defaultRetriesPolicyExponentialInterval),
				ConstantBackoffInterval:           config.TimeDuration(defaultRetriesPolicyConstantInterval),
			},
		},
		RateLimits: RateLimitConfig{
			Burst:       DefaultRateLimitingBurst,
			WaitTimeout: config.TimeDuration(DefaultRateLimitingWaitTimeout),
		},
		Log:     LoggerConfig{Enabled: true, Mode: LoggingModeAll},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRetriesEnabled, false)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, DefaultMaxRetryAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, RetryPolicyExponential)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitial, defaultRetriesPolicyExponentialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyConstantInterval, defaultRetriesPolicyConstantInterval)
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyLoggerEnabled, true)
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeAll))
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("must not be negative"))
	}
	c.Timeout = config.TimeDuration(timeout)

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	Enabled     bool         `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxAttempts int          `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	Policy      PolicyConfig `mapstructure:"policy" yaml:"policy" json:"policy"`
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRetriesEnabled); err != nil {
		return err
	}
	if c.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("must not be negative"))
	}
	return c.Policy.Set(dp)
}

// TransportOpts returns transport options.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts, BackoffPolicy: c.Policy.NewPolicy()}
}

// PolicyConfig represents configuration options for policy retry.
type PolicyConfig struct {
	Strategy                          string              `mapstructure:"strategy" yaml:"strategy" json:"strategy"`
	ExponentialBackoffInitialInterval config.TimeDuration `mapstructure:"exponentialBackoffInitialInterval" yaml:"exponentialBackoffInitialInterval" json:"exponentialBackoffInitialInterval"`
	ConstantBackoffInterval           config.TimeDuration `mapstructure:"constantBackoffInterval" yaml:"constantBackoffInterval" json:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Strategy, err = dp.GetStringFromSet(
		cfgKeyRetriesPolicyStrategy, []string{RetryPolicyExponential, RetryPolicyConstant}, false,
	); err != nil {
		return err
	}
	for _, item := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyRetriesPolicyExponentialInitial, &c.ExponentialBackoffInitialInterval},
		{cfgKeyRetriesPolicyConstantInterval, &c.ConstantBackoffInterval},
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
	return nil
}

// NewPolicy returns a retry policy for the configured strategy.
// The number of attempts is limited by RetryableRoundTripper, not by the policy.
func (c *PolicyConfig) NewPolicy() retry.Policy {
	if c.Strategy == RetryPolicyConstant {
		return retry.NewConstantBackoffPolicy(time.Duration(c.ConstantBackoffInterval), 0)
	}
	return retry.NewExponentialBackoffPolicy(time.Duration(c.ExponentialBackoffInitialInterval), 0)
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	Enabled     bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Limit       int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Burst       int                 `mapstructure:"burst" yaml:"burst" json:"burst"`
	WaitTimeout config.TimeDuration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.Enabled && c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("must not be negative"))
	}
	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("must not be negative"))
	}
	c.WaitTimeout = config.TimeDuration(waitTimeout)
	return nil
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: time.Duration(c.WaitTimeout)}
}

// NewLimiter creates a token bucket limiter that may be shared by several clients via Opts.RateLimiter.
func (c *RateLimitConfig) NewLimiter() *rate.Limiter {
	burst := c.Burst
	if burst == 0 {
		burst = DefaultRateLimitingBurst
	}
	return rate.NewLimiter(rate.Limit(c.Limit), burst)
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	Enabled              bool                `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Mode                 LoggingMode         `mapstructure:"mode" yaml:"mode" json:"mode"`
	SlowRequestThreshold config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, false)
	if err != nil {
		return err
	}
	c.Mode = LoggingMode(mode)
	threshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("must not be negative"))
	}
	c.SlowRequestThreshold = config.TimeDuration(threshold)
	return nil
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: time.Duration(c.SlowRequestThreshold)}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	var err error
	c.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}
