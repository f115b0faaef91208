/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package app

import (
	"path/filepath"
	"strings"

	"github.com/acronis/go-batchproxy/config"
	"github.com/acronis/go-batchproxy/httpserver"
	"github.com/acronis/go-batchproxy/internal/batch"
	"github.com/acronis/go-batchproxy/internal/dispatch"
	"github.com/acronis/go-batchproxy/internal/ratelimit"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/profserver"
)

// EnvVarsPrefix is the prefix of environment variables, e.g. BATCHPROXY_QUEUE_CAPACITY.
const EnvVarsPrefix = "batchproxy"

const (
	cfgMetricsServerKeyPrefix    = "metricsServer"
	cfgMetricsServerDefaultAddr  = ":9000"
	envVarProxyAddress           = "LISTEN"
	envVarMetricsAddress         = "METRICS_ADDRESS"
	envVarPrefixedProxyAddress   = "BATCHPROXY_SERVER_ADDRESS"
	envVarPrefixedMetricsAddress = "BATCHPROXY_METRICSSERVER_ADDRESS"
)

// AppConfig is the configuration of the whole process. It is read once at startup.
type AppConfig struct {
	Server        *httpserver.Config   `mapstructure:"server" yaml:"server" json:"server"`
	MetricsServer *httpserver.Config   `mapstructure:"metricsServer" yaml:"metricsServer" json:"metricsServer"`
	Queue         *batch.QueueConfig   `mapstructure:"queue" yaml:"queue" json:"queue"`
	Pool          *dispatch.PoolConfig `mapstructure:"pool" yaml:"pool" json:"pool"`
	Batch         *batch.Config        `mapstructure:"batch" yaml:"batch" json:"batch"`
	Dispatch      *dispatch.Config     `mapstructure:"dispatch" yaml:"dispatch" json:"dispatch"`
	RateLimit     *ratelimit.Config    `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Log           *log.Config          `mapstructure:"log" yaml:"log" json:"log"`
	ProfServer    *profserver.Config   `mapstructure:"profserver" yaml:"profserver" json:"profserver"`
}

var _ config.Config = (*AppConfig)(nil)

// NewAppConfig creates a new instance of the AppConfig.
// The proxy and metrics listen addresses may also be set by LISTEN and METRICS_ADDRESS environment variables.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server: httpserver.NewConfig(
			httpserver.WithAddressEnvVars(envVarPrefixedProxyAddress, envVarProxyAddress)),
		MetricsServer: httpserver.NewConfig(
			httpserver.WithKeyPrefix(cfgMetricsServerKeyPrefix),
			httpserver.WithDefaultAddress(cfgMetricsServerDefaultAddr),
			httpserver.WithAddressEnvVars(envVarPrefixedMetricsAddress, envVarMetricsAddress)),
		Queue:      batch.NewQueueConfig(),
		Pool:       dispatch.NewPoolConfig(),
		Batch:      batch.NewConfig(),
		Dispatch:   dispatch.NewConfig(),
		RateLimit:  ratelimit.NewConfig(),
		Log:        log.NewConfig(),
		ProfServer: profserver.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values for all sections.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values of all sections from config.DataProvider.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// LoadConfig loads the AppConfig from defaults, environment variables and an optional file.
// The file format is chosen by its extension (.json or YAML otherwise).
func LoadConfig(path string) (*AppConfig, error) {
	cfg := NewAppConfig()
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	if path == "" {
		return cfg, loader.Load(cfg)
	}
	return cfg, loader.LoadFromFile(path, dataTypeByPath(path), cfg)
}

func dataTypeByPath(path string) config.DataType {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.DataTypeJSON
	}
	return config.DataTypeYAML
}
