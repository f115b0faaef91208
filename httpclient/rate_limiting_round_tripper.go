/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Defaults of RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// RateLimitingRoundTripperOpts configures RateLimitingRoundTripper. Zero values mean defaults.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration

	// Limiter is shared with other round trippers when set. The rate limit and Burst are taken from it.
	Limiter *rate.Limiter
}

// RateLimitingRoundTripper delays outgoing requests so that a downstream does not receive
// more than RateLimit requests per second from one client (token bucket).
type RateLimitingRoundTripper struct {
	Delegate    http.RoundTripper
	RateLimit   int
	Burst       int
	WaitTimeout time.Duration

	limiter *rate.Limiter
}

// NewRateLimitingRoundTripper creates a RateLimitingRoundTripper with default options.
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a RateLimitingRoundTripper.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	switch {
	case rateLimit <= 0:
		return nil, errors.New("rate limit must be positive")
	case opts.Burst < 0:
		return nil, errors.New("burst must be positive")
	}
	rt := &RateLimitingRoundTripper{
		Delegate:    delegate,
		RateLimit:   rateLimit,
		Burst:       opts.Burst,
		WaitTimeout: opts.WaitTimeout,
	}
	if rt.Burst == 0 {
		rt.Burst = DefaultRateLimitingBurst
	}
	if rt.WaitTimeout == 0 {
		rt.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	if opts.Limiter != nil {
		rt.limiter = opts.Limiter
		rt.RateLimit = int(opts.Limiter.Limit())
		rt.Burst = opts.Limiter.Burst()
		return rt, nil
	}
	rt.limiter = rate.NewLimiter(rate.Limit(rateLimit), rt.Burst)
	return rt, nil
}

// RoundTrip waits for a token no longer than WaitTimeout and then sends the request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	waitCtx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	err := rt.limiter.Wait(waitCtx)
	cancel()
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}
	return rt.Delegate.RoundTrip(r)
}

// RateLimitingWaitError means the request was not sent because no token became available in time.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return "wait due to client side rate limiting: " + e.Inner.Error()
}

func (e *RateLimitingWaitError) Unwrap() error { return e.Inner }
