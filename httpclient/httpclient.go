/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds http.Client instances whose transport is a chain of round trippers
// (logging, metrics, rate limiting, user agent, request id and retries) configured by Config.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/acronis/go-batchproxy/log"
)

// DefaultRequestType is used in logs and metrics when Opts.RequestType is empty.
const DefaultRequestType = "downstream"

// Opts provides options for NewWithOpts and MustWithOpts functions.
type Opts struct {
	// UserAgent is a user agent string set into requests that do not have one.
	UserAgent string

	// RequestType is a type of request used for correlation in logs and metrics (e.g. "proxy").
	RequestType string

	// Delegate is the innermost RoundTripper in the chain. A clone of http.DefaultTransport is used by default.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Collector is a metrics collector. Metrics are not collected when it's nil.
	Collector MetricsCollector

	// RateLimiter is shared by all clients created with it when rate limits are enabled.
	// Each client gets its own limiter when it's nil.
	RateLimiter *rate.Limiter
}

// New wraps the default transport with the round trippers enabled in cfg.
func New(cfg *Config) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts wraps the delegate transport with the round trippers enabled in cfg
// and returns an error if any occurs.
// The order from the outermost is: retries, request id, user agent, rate limiting, metrics, logging.
// Each retry attempt is therefore rate limited, measured and logged separately.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	var err error
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	requestType := opts.RequestType
	if requestType == "" {
		requestType = DefaultRequestType
	}

	if cfg.Log.Enabled {
		logOpts := cfg.Log.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, requestType, logOpts)
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: requestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.RateLimits.Enabled {
		rateLimitOpts := cfg.RateLimits.TransportOpts()
		rateLimitOpts.Limiter = opts.RateLimiter
		delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, cfg.RateLimits.Limit, rateLimitOpts)
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	if cfg.Retries.Enabled {
		retryOpts := cfg.Retries.TransportOpts()
		retryOpts.LoggerProvider = opts.LoggerProvider
		delegate, err = NewRetryableRoundTripperWithOpts(delegate, retryOpts)
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}, nil
}

// MustWithOpts is like NewWithOpts but panics if any error occurs.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}
