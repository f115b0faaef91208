/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/restapi"
)

func TestHealthCheckHandler_ServeHTTP(t *testing.T) {
	makeRequest := func(ctx context.Context) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/", nil).
			WithContext(middleware.NewContextWithLogger(ctx, log.NewDisabledLogger()))
	}

	t.Run("health-check returns error", func(t *testing.T) {
		h := NewHealthCheckHandler(func(_ context.Context) (HealthCheckResult, error) {
			return nil, fmt.Errorf("internal error")
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusInternalServerError, resp.Code)
	})

	t.Run("health-check with empty components", func(t *testing.T) {
		h := NewHealthCheckHandler(nil)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, restapi.ContentTypeAppJSON, resp.Header().Get("Content-Type"))
	})

	t.Run("health-check returns unhealthy components", func(t *testing.T) {
		h := NewHealthCheckHandler(func(_ context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"queue": HealthCheckStatusOK, "pool": HealthCheckStatusFail}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		var gotRespData healthCheckResponseData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotRespData))
		require.Equal(t, healthCheckResponseData{Components: map[string]bool{"queue": true, "pool": false}}, gotRespData)
	})

	t.Run("health-check returns healthy components", func(t *testing.T) {
		h := NewHealthCheckHandler(func(_ context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{"queue": HealthCheckStatusOK, "pool": HealthCheckStatusOK}, nil
		})
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(context.Background()))
		require.Equal(t, http.StatusOK, resp.Code)
		var gotRespData healthCheckResponseData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotRespData))
		require.Equal(t, healthCheckResponseData{Components: map[string]bool{"queue": true, "pool": true}}, gotRespData)
	})

	t.Run("default health-check responds error on client cancel", func(t *testing.T) {
		h := NewHealthCheckHandler(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})

	t.Run("health-check that ignores context responds error on client cancel", func(t *testing.T) {
		h := NewHealthCheckHandler(func(_ context.Context) (HealthCheckResult, error) {
			return HealthCheckResult{}, nil
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, makeRequest(ctx))
		require.Equal(t, StatusClientClosedRequest, resp.Code)
	})
}
