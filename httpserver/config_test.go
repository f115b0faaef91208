/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
server:
  address: "127.0.0.1:8080"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  limits:
    maxBodySize: 2M
  log:
    requestStart: true
    excludedEndpoints: ["/healthz"]
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:8080"
				cfg.Timeouts.Write = config.TimeDuration(time.Hour)
				cfg.Timeouts.Read = config.TimeDuration(time.Minute * 7)
				cfg.Timeouts.ReadHeader = config.TimeDuration(time.Minute)
				cfg.Timeouts.Idle = config.TimeDuration(time.Minute * 20)
				cfg.Timeouts.Shutdown = config.TimeDuration(time.Second * 30)
				cfg.Limits.MaxBodySize = 2 * 1024 * 1024
				cfg.Log.RequestStart = true
				cfg.Log.ExcludedEndpoints = []string{"/healthz"}
				return cfg
			},
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{"server": {"address": "127.0.0.1:9090", "limits": {"maxBodySize": 1024}}}`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:9090"
				cfg.Limits.MaxBodySize = 1024
				return cfg
			},
		},
		{
			name:        "defaults",
			cfgDataType: config.DataTypeYAML,
			cfgData:     `server: {}`,
			expectedCfg: func() *Config {
				return NewDefaultConfig()
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), tt.cfgDataType, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfigWithOptions(t *testing.T) {
	t.Run("custom prefix and default address", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("metricsServer"), WithDefaultAddress(":9000"))
		require.NoError(t, config.NewDefaultLoader("").Load(cfg))
		require.Equal(t, "metricsServer", cfg.KeyPrefix())
		require.Equal(t, ":9000", cfg.Address)
		require.Equal(t, defaultServerLimitsMaxBodySize, cfg.Limits.MaxBodySize)
	})

	t.Run("address from bound env var", func(t *testing.T) {
		t.Setenv("TEST_METRICS_ADDRESS", "127.0.0.1:9100")
		cfg := NewConfig(WithKeyPrefix("metricsServer"), WithAddressEnvVars("TEST_METRICS_ADDRESS"))
		require.NoError(t, config.NewDefaultLoader("batchproxytest").Load(cfg))
		require.Equal(t, "127.0.0.1:9100", cfg.Address)
	})

	t.Run("prefixed env var wins over bound one", func(t *testing.T) {
		t.Setenv("TEST_LISTEN", "127.0.0.1:3001")
		t.Setenv("BATCHPROXYTEST_SERVER_ADDRESS", "127.0.0.1:3002")
		cfg := NewConfig(WithAddressEnvVars("TEST_LISTEN"))
		require.NoError(t, config.NewDefaultLoader("batchproxytest").Load(cfg))
		require.Equal(t, "127.0.0.1:3002", cfg.Address)
	})
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		errMsg  string
	}{
		{name: "empty address", cfgData: `server: {address: ""}`, errMsg: "server.address: address should be set"},
		{name: "invalid timeout", cfgData: `server: {timeouts: {read: "foo"}}`, errMsg: "server.timeouts.read"},
		{name: "negative timeout", cfgData: `server: {timeouts: {idle: "-1s"}}`, errMsg: "server.timeouts.idle: must not be negative"},
		{name: "invalid body size", cfgData: `server: {limits: {maxBodySize: "1Z"}}`, errMsg: "server.limits.maxBodySize"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, NewConfig())
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}
