/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/retry"
)

// Defaults of RetryableRoundTripper.
const (
	DefaultMaxRetryAttempts                  = 3
	DefaultExponentialBackoffInitialInterval = 100 * time.Millisecond
)

// RetryAttemptNumberHeader carries the number of the retry attempt (1 for the first retry).
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// DefaultBackoffPolicy is used when the response has no Retry-After header.
var DefaultBackoffPolicy retry.Policy = retry.NewExponentialBackoffPolicy(DefaultExponentialBackoffInitialInterval, 0)

// CheckRetryFunc decides after every attempt whether one more is needed.
type CheckRetryFunc func(ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error) (bool, error)

// RetryableRoundTripper repeats failed requests.
// At most MaxRetryAttempts retries are done, so a request may be sent MaxRetryAttempts+1 times.
// The delay between attempts is taken from Retry-After or from BackoffPolicy.
type RetryableRoundTripper struct {
	Delegate         http.RoundTripper
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetry       CheckRetryFunc
	BackoffPolicy    retry.Policy
}

// RetryableRoundTripperOpts configures RetryableRoundTripper. Zero values mean defaults.
type RetryableRoundTripperOpts struct {
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	BackoffPolicy    retry.Policy
}

// NewRetryableRoundTripper creates a RetryableRoundTripper with default options.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a RetryableRoundTripper.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 {
		return nil, errors.New("incorrect max retry attempts")
	}
	rt := &RetryableRoundTripper{
		Delegate:         delegate,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		BackoffPolicy:    opts.BackoffPolicy,
	}
	if rt.MaxRetryAttempts == 0 {
		rt.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if rt.CheckRetry == nil {
		rt.CheckRetry = DefaultCheckRetry
	}
	if rt.BackoffPolicy == nil {
		rt.BackoffPolicy = DefaultBackoffPolicy
	}
	return rt, nil
}

// RoundTrip sends the request and repeats it while CheckRetry asks for it.
// The last response (or error) is returned when retrying stops for any reason.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	logger := rt.logger(ctx)

	var resetBody func(*http.Request) error
	if req.Body != nil && req.Body != http.NoBody {
		origBody := req.Body
		defer func() { _ = origBody.Close() }()
		var err error
		if req, resetBody, err = replayableRequest(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	bf := rt.BackoffPolicy.NewBackOff()
	attempt := 0
	for {
		resp, rtErr := rt.Delegate.RoundTrip(req)
		done := attempt + 1

		needRetry, checkErr := rt.CheckRetry(ctx, req, resp, rtErr)
		if checkErr != nil {
			logger.Error("failed to check if retry is needed", log.Error(checkErr), log.Int("requests_done", done))
			return resp, rtErr
		}
		if !needRetry {
			return resp, rtErr
		}
		if attempt >= rt.MaxRetryAttempts {
			logger.Warn("max retry attempts exceeded",
				log.Int("max_retry_attempts", rt.MaxRetryAttempts), log.Int("requests_done", done))
			return resp, rtErr
		}

		wait, ok := retryAfter(resp)
		if !ok {
			if wait = bf.NextBackOff(); wait == backoff.Stop {
				return resp, rtErr
			}
		}
		if !sleepCtx(ctx, wait) {
			logger.Warn("context canceled while waiting for the next retry attempt",
				log.Error(ctx.Err()), log.Int("requests_done", done))
			return resp, rtErr
		}

		attempt++
		next := req.Clone(ctx)
		if resetBody != nil {
			if err := resetBody(next); err != nil {
				logger.Error("failed to rewind request body between retry attempts",
					log.Error(err), log.Int("requests_done", done))
				return resp, rtErr
			}
		}
		if resp != nil {
			discardBody(resp, logger)
		}
		next.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		req = next
	}
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.LoggerProvider != nil {
		if logger := rt.LoggerProvider(ctx); logger != nil {
			return logger
		}
	}
	return log.NewDisabledLogger()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryableRoundTripperError means the request body could not be prepared for resending.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return "retryable round trip: " + e.Inner.Error()
}

func (e *RetryableRoundTripperError) Unwrap() error { return e.Inner }

// DefaultCheckRetry retries idempotent requests that failed with a temporary network error, 429 or 5xx.
// GET, HEAD, OPTIONS, PUT and DELETE are idempotent, other methods only with NewContextWithIdempotentHint.
func DefaultCheckRetry(ctx context.Context, req *http.Request, resp *http.Response, roundTripErr error) (bool, error) {
	if !isIdempotent(ctx, req) {
		return false, nil
	}
	switch {
	case roundTripErr != nil:
		return CheckErrorIsTemporary(roundTripErr), nil
	case resp == nil:
		return false, errors.New("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

func isIdempotent(ctx context.Context, req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return GetIdempotentHintFromContext(ctx)
}

// CheckErrorIsTemporary reports whether the network error is worth another attempt.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var tempErr interface{ Temporary() bool }
	return errors.As(err, &tempErr) && tempErr.Temporary()
}

// replayableRequest clones req with a body that can be sent again.
// GetBody is used when present (requests built from strings and byte slices have it),
// otherwise the body is read into memory.
func replayableRequest(req *http.Request) (*http.Request, func(*http.Request) error, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, nil, fmt.Errorf("get body before doing first request: %w", err)
		}
		clone.Body = body
		return clone, func(r *http.Request) error {
			b, err := r.GetBody()
			if err != nil {
				return fmt.Errorf("get body for retry: %w", err)
			}
			r.Body = b
			return nil
		}, nil
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	clone.Body = io.NopCloser(bytes.NewReader(data))
	return clone, func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(data))
		return nil
	}, nil
}

// discardBody drains and closes the response so the connection can be reused.
func discardBody(resp *http.Response, logger log.FieldLogger) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Error("failed to close previous response body between retry attempts", log.Error(err))
	}
}

// retryAfter parses the Retry-After header given either in seconds or as an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	val := resp.Header.Get("Retry-After")
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, secs >= 0
	}
	at, err := http.ParseTime(val)
	if err != nil {
		return 0, false
	}
	return time.Until(at), true
}
