/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitingRoundTripper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	t.Run("requests are spread in time", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 20)
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		start := time.Now()
		for i := 0; i < 3; i++ {
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			_ = resp.Body.Close()
		}
		// The first request uses the burst, the next two wait 50ms each.
		require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("wait timeout", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1,
			RateLimitingRoundTripperOpts{WaitTimeout: 10 * time.Millisecond})
		require.NoError(t, err)
		client := &http.Client{Transport: rt}

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()

		_, err = client.Get(server.URL) //nolint:bodyclose
		var waitErr *RateLimitingWaitError
		require.ErrorAs(t, err, &waitErr)
	})

	t.Run("shared limiter", func(t *testing.T) {
		limiter := (&RateLimitConfig{Limit: 1}).NewLimiter()
		opts := RateLimitingRoundTripperOpts{WaitTimeout: 10 * time.Millisecond, Limiter: limiter}
		rt1, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 100, opts)
		require.NoError(t, err)
		rt2, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 100, opts)
		require.NoError(t, err)
		require.Equal(t, 1, rt2.RateLimit)
		require.Equal(t, DefaultRateLimitingBurst, rt2.Burst)

		resp, err := (&http.Client{Transport: rt1}).Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()

		_, err = (&http.Client{Transport: rt2}).Get(server.URL) //nolint:bodyclose
		var waitErr *RateLimitingWaitError
		require.ErrorAs(t, err, &waitErr)
	})

	t.Run("canceled context", func(t *testing.T) {
		rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 1)
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
		require.NoError(t, err)
		_, err = rt.RoundTrip(req) //nolint:bodyclose
		require.Error(t, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewRateLimitingRoundTripper(http.DefaultTransport, 0)
		require.Error(t, err)
		_, err = NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1, RateLimitingRoundTripperOpts{Burst: -1})
		require.Error(t, err)
	})
}
