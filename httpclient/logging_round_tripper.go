/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
)

// LoggingMode selects which client requests are logged.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid reports whether the mode is known.
func (lm LoggingMode) IsValid() bool {
	return lm == LoggingModeNone || lm == LoggingModeAll || lm == LoggingModeFailed
}

// LoggingRoundTripperOpts configures LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider returns the logger for the request, middleware.GetLoggerFromContext by default.
	// Requests without a logger are not logged.
	LoggerProvider func(ctx context.Context) log.FieldLogger
	// Mode is LoggingModeAll by default.
	Mode LoggingMode
	// SlowRequestThreshold hides successful requests faster than that in LoggingModeAll.
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs outgoing requests. Transport errors are logged at error level,
// responses (including 4xx and 5xx) at info level.
type LoggingRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Opts        LoggingRoundTripperOpts
}

// NewLoggingRoundTripper creates a LoggingRoundTripper with default options.
func NewLoggingRoundTripper(delegate http.RoundTripper, requestType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, requestType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates a LoggingRoundTripper.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, requestType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeAll
	}
	if opts.LoggerProvider == nil {
		opts.LoggerProvider = middleware.GetLoggerFromContext
	}
	return &LoggingRoundTripper{Delegate: delegate, RequestType: requestType, Opts: opts}
}

func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	var logger log.FieldLogger
	if rt.Opts.Mode != LoggingModeNone {
		logger = rt.Opts.LoggerProvider(r.Context())
	}
	if logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if err == nil && !rt.shouldLogResponse(resp, elapsed) {
		return resp, nil
	}
	fields := []log.Field{
		log.String("request_type", rt.RequestType),
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if err != nil {
		logger.Error(fmt.Sprintf("client http request %s %s failed in %.3fs", r.Method, r.URL, elapsed.Seconds()),
			append(fields, log.Error(err))...)
		return nil, err
	}
	logger.Info(fmt.Sprintf("client http request %s %s completed with status code %d in %.3fs",
		r.Method, r.URL, resp.StatusCode, elapsed.Seconds()), append(fields, log.Int("status", resp.StatusCode))...)
	return resp, nil
}

func (rt *LoggingRoundTripper) shouldLogResponse(resp *http.Response, elapsed time.Duration) bool {
	if resp.StatusCode >= http.StatusBadRequest {
		return true
	}
	return rt.Opts.Mode == LoggingModeAll && elapsed >= rt.Opts.SlowRequestThreshold
}
