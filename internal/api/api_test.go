/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-batchproxy/restapi"
)

func newRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/proxy", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDecodeBatchRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		br, err := DecodeBatchRequest(newRequest(`{"timeout_s": 1.5, "requests": [
			{"id": "1", "url": "http://example.com/a", "method": "post", "body": "hi", "headers": {"X-A": "b"}},
			{"id": "2", "url": "https://example.com/b", "method": "GET"}
		]}`))
		require.NoError(t, err)
		require.NotNil(t, br.TimeoutS)
		require.Equal(t, 1.5, *br.TimeoutS)
		require.Len(t, br.Requests, 2)
		require.Equal(t, Request{
			ID: "1", URL: "http://example.com/a", Method: http.MethodPost, Body: "hi", Headers: map[string]string{"X-A": "b"},
		}, br.Requests[0])
		require.Equal(t, http.MethodGet, br.Requests[1].Method)
	})

	t.Run("empty batch", func(t *testing.T) {
		br, err := DecodeBatchRequest(newRequest(`{"requests": []}`))
		require.NoError(t, err)
		require.Nil(t, br.TimeoutS)
		require.Empty(t, br.Requests)
	})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `hello`},
		{"truncated", `{"requests": [`},
		{"wrong type", `{"requests": {}}`},
		{"two objects", `{"requests": []} {}`},
		{"negative timeout", `{"timeout_s": -1, "requests": []}`},
		{"missing id", `{"requests": [{"url": "http://example.com", "method": "GET"}]}`},
		{"missing method", `{"requests": [{"id": "1", "url": "http://example.com"}]}`},
		{"invalid method", `{"requests": [{"id": "1", "url": "http://example.com", "method": "G ET"}]}`},
		{"missing url", `{"requests": [{"id": "1", "method": "GET"}]}`},
		{"relative url", `{"requests": [{"id": "1", "url": "/path", "method": "GET"}]}`},
		{"unsupported scheme", `{"requests": [{"id": "1", "url": "ftp://example.com", "method": "GET"}]}`},
		{"duplicate id", `{"requests": [
			{"id": "1", "url": "http://example.com", "method": "GET"},
			{"id": "1", "url": "http://example.com", "method": "GET"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatchRequest(newRequest(tt.body))
			var malformedErr *restapi.MalformedRequestError
			require.ErrorAs(t, err, &malformedErr)
			require.Equal(t, http.StatusBadRequest, malformedErr.HTTPStatusCode)
		})
	}

	t.Run("unsupported content type", func(t *testing.T) {
		req := newRequest(`{"requests": []}`)
		req.Header.Set("Content-Type", "text/plain")
		_, err := DecodeBatchRequest(req)
		var malformedErr *restapi.MalformedRequestError
		require.ErrorAs(t, err, &malformedErr)
		require.Equal(t, http.StatusUnsupportedMediaType, malformedErr.HTTPStatusCode)
	})
}

func TestBatchRequest_TTL(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name     string
		timeoutS *float64
		want     time.Duration
	}{
		{"default", nil, 30 * time.Second},
		{"explicit", f(0.01), 10 * time.Millisecond},
		{"zero", f(0), 0},
		{"clamped", f(1e12), 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := BatchRequest{TimeoutS: tt.timeoutS}
			require.Equal(t, tt.want, br.TTL(30*time.Second, 5*time.Minute))
		})
	}

	br := BatchRequest{TimeoutS: f(1e12)}
	require.Equal(t, time.Duration(math.MaxInt64), br.TTL(time.Second, 0))
}

func TestResponse_JSON(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{
			name: "success",
			resp: Response{ID: "1", StatusCode: 200, Body: []byte("ok")},
			want: `{"id":"1","status_code":200,"body":"b2s="}`,
		},
		{
			name: "backpressure",
			resp: Response{ID: "3", StatusCode: 503, Backpressure: &Backpressure{QueueCapacity: 2, QueueFreeSpace: 0}},
			want: `{"id":"3","status_code":503,"queue_capacity":2,"queue_free_space":0}`,
		},
		{
			name: "timeout",
			resp: Response{ID: "4", StatusCode: 504, Error: "timeout"},
			want: `{"id":"4","status_code":504,"error":"timeout"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, json.NewEncoder(&buf).Encode(tt.resp))
			require.JSONEq(t, tt.want, buf.String())
		})
	}
}
