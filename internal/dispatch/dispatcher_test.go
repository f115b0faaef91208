/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/config"
	"github.com/acronis/go-batchproxy/httpclient"
	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/internal/api"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/log/logtest"
	"github.com/acronis/go-batchproxy/testutil"
)

func newConn(t *testing.T, cfg *Config) *Conn {
	t.Helper()
	conn, err := NewConnFactory(cfg, log.NewDisabledLogger(), ConnFactoryOpts{}).New(context.Background())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestDispatcher_Dispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(rw, "%s %s %s", r.Method, r.URL.Path, body)
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	conn := newConn(t, cfg)
	logRecorder := logtest.NewRecorder()
	ctx := middleware.NewContextWithLogger(context.Background(), logRecorder)
	ctx = middleware.NewContextWithRequestID(ctx, "req-1")

	resp, err := NewDispatcher(cfg).Dispatch(ctx, conn, api.Request{
		ID:      "1",
		URL:     server.URL + "/echo",
		Method:  http.MethodPut,
		Body:    "hello",
		Headers: map[string]string{"X-Custom": "value", "Host": "example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "PUT /echo hello", string(resp.Body))

	logEntry, found := logRecorder.FindEntryByFilter(func(entry logtest.RecordedEntry) bool {
		return strings.HasPrefix(entry.Text, "client http request PUT "+server.URL+"/echo completed with status code 201")
	})
	require.True(t, found)
	requestTypeField, found := logEntry.FindField("request_type")
	require.True(t, found)
	require.Equal(t, RequestType, string(requestTypeField.Bytes))

	// The same handle is reusable.
	resp, err = NewDispatcher(cfg).Dispatch(ctx, conn, api.Request{ID: "2", URL: server.URL + "/again", Method: http.MethodGet})
	require.NoError(t, err)
	require.Equal(t, "GET /again ", string(resp.Body))
}

func TestDispatcher_DispatchHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	hosts := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		hosts <- r.Host
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Headers = map[string]string{"x-tenant": "default", "X-Custom": "overridden"}
	ctx := middleware.NewContextWithRequestID(context.Background(), "req-1")
	_, err := NewDispatcher(cfg).Dispatch(ctx, newConn(t, cfg), api.Request{
		ID:      "1",
		URL:     server.URL,
		Method:  http.MethodGet,
		Headers: map[string]string{"X-Custom": "value", "host": "example.com"},
	})
	require.NoError(t, err)

	h := <-headers
	require.Equal(t, "value", h.Get("X-Custom"))
	require.Equal(t, "default", h.Get("X-Tenant"))
	require.Equal(t, "req-1", h.Get("X-Request-ID"))
	require.True(t, strings.HasPrefix(h.Get("User-Agent"), "batchproxy/"))
	require.Equal(t, "example.com", <-hosts)
}

func TestDispatcher_DispatchResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte(strings.Repeat("a", 16+len(r.URL.Query().Get("extra")))))
	}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.MaxResponseSize = 16
	dispatcher := NewDispatcher(cfg)

	resp, err := dispatcher.Dispatch(context.Background(), newConn(t, cfg), api.Request{ID: "1", URL: server.URL, Method: http.MethodGet})
	require.NoError(t, err)
	require.Len(t, resp.Body, 16)

	_, err = dispatcher.Dispatch(context.Background(), newConn(t, cfg), api.Request{ID: "2", URL: server.URL + "?extra=x", Method: http.MethodGet})
	require.ErrorIs(t, err, ErrResponseTooLarge)
	require.False(t, IsTransient(err))
}

func TestDispatcher_DispatchTransientErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	dispatcher := NewDispatcher(cfg)

	t.Run("connection refused", func(t *testing.T) {
		_, err := dispatcher.Dispatch(context.Background(), newConn(t, cfg), api.Request{
			ID: "1", URL: "http://" + testutil.GetLocalAddrWithFreeTCPPort(), Method: http.MethodGet,
		})
		require.Error(t, err)
		require.True(t, IsTransient(err), "%v", err)
	})

	t.Run("connection closed before response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			hj, ok := rw.(http.Hijacker)
			require.True(t, ok)
			c, _, hjErr := hj.Hijack()
			require.NoError(t, hjErr)
			_ = c.Close()
		}))
		defer server.Close()

		_, err := dispatcher.Dispatch(context.Background(), newConn(t, cfg), api.Request{
			ID: "1", URL: server.URL, Method: http.MethodPost, Body: "x",
		})
		require.Error(t, err)
		require.True(t, IsTransient(err), "%v", err)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := dispatcher.Dispatch(ctx, newConn(t, cfg), api.Request{ID: "1", URL: server.URL, Method: http.MethodGet})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.False(t, IsTransient(err))
	})

	t.Run("invalid method", func(t *testing.T) {
		_, err := dispatcher.Dispatch(context.Background(), newConn(t, cfg), api.Request{
			ID: "1", URL: "http://localhost", Method: "BAD METHOD",
		})
		require.Error(t, err)
		require.False(t, IsTransient(err))
	})
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("some error")))
	require.True(t, IsTransient(fmt.Errorf("read: %w", io.ErrUnexpectedEOF)))
	require.False(t, IsTransient(fmt.Errorf("%w: %w", context.Canceled, io.EOF)))
}

func TestConnFactory_CreateRate(t *testing.T) {
	factory := NewConnFactory(NewDefaultConfig(), log.NewDisabledLogger(), ConnFactoryOpts{CreateRate: 1, CreateBurst: 1})

	conn, err := factory.New(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, conn.ID)
	conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = factory.New(ctx)
	require.Error(t, err)
}

func TestConnFactory_SharedRequestRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := NewDefaultConfig()
	cfg.Client.RateLimits.Enabled = true
	cfg.Client.RateLimits.Limit = 1
	cfg.Client.RateLimits.Burst = 1
	cfg.Client.RateLimits.WaitTimeout = config.TimeDuration(50 * time.Millisecond)
	factory := NewConnFactory(cfg, log.NewDisabledLogger(), ConnFactoryOpts{})

	conn1, err := factory.New(context.Background())
	require.NoError(t, err)
	defer conn1.Close()
	conn2, err := factory.New(context.Background())
	require.NoError(t, err)
	defer conn2.Close()

	dispatcher := NewDispatcher(cfg)
	_, err = dispatcher.Dispatch(context.Background(), conn1, api.Request{ID: "1", URL: server.URL, Method: http.MethodGet})
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), conn2, api.Request{ID: "2", URL: server.URL, Method: http.MethodGet})
	var waitErr *httpclient.RateLimitingWaitError
	require.ErrorAs(t, err, &waitErr)
	require.False(t, IsTransient(err))
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		poolCfg := NewPoolConfig()
		require.NoError(t, config.NewDefaultLoader("").Load(cfg, poolCfg))
		require.Equal(t, NewDefaultConfig(), cfg)
		require.Equal(t, NewDefaultPoolConfig(), poolCfg)
	})

	t.Run("yaml", func(t *testing.T) {
		cfgData := `
dispatch:
  maxResponseSize: 32K
  connectTimeout: 1s
  idleConnTimeout: 10s
  userAgent: test-agent
  dnsServers: ["127.0.0.1:53", "10.0.0.2:53"]
  dnsTimeout: 500ms
  headers:
    X-Tenant: acme
  timeout: 30s
  retries:
    enabled: true
    maxAttempts: 2
  logger:
    mode: failed
pool:
  capacity: 8
  idleTimeout: 1m
  reapInterval: 10s
  createRate: 2.5
  createBurst: 4
`
		cfg := NewConfig()
		poolCfg := NewPoolConfig()
		err := config.NewDefaultLoader("").LoadFromReader(strings.NewReader(cfgData), config.DataTypeYAML, cfg, poolCfg)
		require.NoError(t, err)
		require.Equal(t, config.ByteSize(32*1024), cfg.MaxResponseSize)
		require.Equal(t, config.TimeDuration(time.Second), cfg.ConnectTimeout)
		require.Equal(t, config.TimeDuration(10*time.Second), cfg.IdleConnTimeout)
		require.Equal(t, "test-agent", cfg.UserAgent)
		require.Equal(t, []string{"127.0.0.1:53", "10.0.0.2:53"}, cfg.DNSServers)
		require.Equal(t, config.TimeDuration(500*time.Millisecond), cfg.DNSTimeout)
		require.Equal(t, map[string]string{"x-tenant": "acme"}, cfg.Headers) // keys are case-insensitive
		require.Equal(t, config.TimeDuration(30*time.Second), cfg.Client.Timeout)
		require.True(t, cfg.Client.Retries.Enabled)
		require.Equal(t, 2, cfg.Client.Retries.MaxAttempts)
		require.Equal(t, "failed", string(cfg.Client.Log.Mode))
		require.Equal(t, &PoolConfig{
			Capacity:     8,
			IdleTimeout:  config.TimeDuration(time.Minute),
			ReapInterval: config.TimeDuration(10 * time.Second),
			CreateRate:   2.5,
			CreateBurst:  4,
		}, poolCfg)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			cfgData string
			errKey  string
		}{
			{"zero max response size", `dispatch: {maxResponseSize: 0}`, "dispatch.maxResponseSize"},
			{"negative connect timeout", `dispatch: {connectTimeout: -1s}`, "dispatch.connectTimeout"},
			{"dns server without port", `dispatch: {dnsServers: ["127.0.0.1"]}`, "dispatch.dnsServers"},
			{"negative dns timeout", `dispatch: {dnsTimeout: -1s}`, "dispatch.dnsTimeout"},
			{"host default header", `dispatch: {headers: {Host: example.com}}`, "dispatch.headers"},
			{"negative pool capacity", `pool: {capacity: -1}`, "pool.capacity"},
			{"zero reap interval", `pool: {reapInterval: 0s}`, "pool.reapInterval"},
			{"zero burst", `pool: {createRate: 1, createBurst: 0}`, "pool.createBurst"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := config.NewDefaultLoader("").LoadFromReader(
					strings.NewReader(tt.cfgData), config.DataTypeYAML, NewConfig(), NewPoolConfig())
				require.ErrorContains(t, err, tt.errKey)
			})
		}
	})
}
