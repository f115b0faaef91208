/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/log/logtest"
	"github.com/acronis/go-batchproxy/restapi"
)

func TestRequestID(t *testing.T) {
	t.Run("generate ids", func(t *testing.T) {
		var gotID, gotIntID string
		h := RequestIDWithOpts(RequestIDOpts{
			GenerateID:         func() string { return "ext-1" },
			GenerateInternalID: func() string { return "int-1" },
		})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotID = GetRequestIDFromContext(r.Context())
			gotIntID = GetInternalRequestIDFromContext(r.Context())
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/proxy", nil))
		require.Equal(t, "ext-1", gotID)
		require.Equal(t, "int-1", gotIntID)
		require.Equal(t, "ext-1", rec.Header().Get("X-Request-ID"))
		require.Equal(t, "int-1", rec.Header().Get("X-Int-Request-ID"))
	})

	t.Run("keep incoming id", func(t *testing.T) {
		h := RequestID()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodPost, "/proxy", nil)
		req.Header.Set("X-Request-ID", "from-client")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, "from-client", rec.Header().Get("X-Request-ID"))
		require.NotEmpty(t, rec.Header().Get("X-Int-Request-ID"))
	})
}

func TestLogging(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	h := RequestIDWithOpts(RequestIDOpts{
		GenerateID:         func() string { return "ext" },
		GenerateInternalID: func() string { return "int" },
	})(Logging(logRecorder)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		logger := GetLoggerFromContext(r.Context())
		require.NotNil(t, logger)
		logger.Info("inside handler")
		rw.WriteHeader(http.StatusAccepted)
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/proxy", nil))

	entry, found := logRecorder.FindEntry("inside handler")
	require.True(t, found)
	field, found := entry.FindField("request_id")
	require.True(t, found)
	require.Equal(t, "ext", string(field.Bytes))

	entry, found = logRecorder.FindEntryByFilter(func(e logtest.RecordedEntry) bool {
		return strings.HasPrefix(e.Text, "response completed in")
	})
	require.True(t, found)
	field, found = entry.FindField("status")
	require.True(t, found)
	require.EqualValues(t, http.StatusAccepted, field.Int)
}

func TestRecovery(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	h := Logging(logRecorder)(Recovery()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, rec.Body.String())

	entry, found := logRecorder.FindEntry("Panic: boom")
	require.True(t, found)
	_, found = entry.FindField("stack")
	require.True(t, found)
}

func TestRequestBodyLimit(t *testing.T) {
	var decodeErr error
	h := RequestBodyLimit(16, http.StatusBadRequest)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var dst map[string]string
		decodeErr = restapi.DecodeRequestJSON(r, &dst)
	}))

	t.Run("content length over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"k":"`+strings.Repeat("v", 32)+`"}`)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Empty(t, rec.Body.String())
	})

	t.Run("unknown content length", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(bytes.NewBufferString(`{"k":"`+strings.Repeat("v", 32)+`"}`)))
		req.ContentLength = -1
		h.ServeHTTP(httptest.NewRecorder(), req)
		var malformedErr *restapi.MalformedRequestError
		require.ErrorAs(t, decodeErr, &malformedErr)
		require.Equal(t, http.StatusRequestEntityTooLarge, malformedErr.HTTPStatusCode)
	})
}

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	reg := prometheus.NewRegistry()
	collector.MustRegister(reg)

	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern))
	router.Post("/proxy", func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = rw.Write([]byte("{}"))
	})
	router.NotFound(func(rw http.ResponseWriter, r *http.Request) { rw.WriteHeader(http.StatusNotFound) })

	for _, target := range []string{"/proxy", "/proxy", "/proxy?fail=1", "/unknown"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, target, nil))
	}

	require.Equal(t, 4.0, testutil.ToFloat64(collector.Requests))
	require.Equal(t, 2.0, testutil.ToFloat64(collector.Responses200))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.Responses4xx))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.Responses5xx))
	require.Equal(t, 0.0, testutil.ToFloat64(collector.InFlight))
	// Three series: /proxy 200, /proxy 502 and the unmatched route with 404.
	require.Equal(t, 3, testutil.CollectAndCount(collector.Durations))
}
