/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/restapi"
)

// ErrCode is an error code that is used in a response body when the request is rejected.
const ErrCode = "tooManyRequests"

// LogFieldKey is the name of the logged field that contains a key for the rate limiter.
const LogFieldKey = "rate_limit_key"

// GetKeyFunc is a function that is called for getting key for rate limiting.
type GetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// MiddlewareOpts represents options for the Middleware.
type MiddlewareOpts struct {
	// GetKey returns the client key. GetKeyByClientIP is used by default.
	GetKey GetKeyFunc
	DryRun bool
}

// GetKeyByClientIP uses the host part of the remote address as the rate limit key.
func GetKeyByClientIP(r *http.Request) (key string, bypass bool, err error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}

// NewMiddleware creates the rate limiting middleware from the configuration.
func NewMiddleware(cfg *Config, errDomain string) (func(next http.Handler) http.Handler, error) {
	limiter, err := NewLimiter(cfg.Alg, cfg.Rate, cfg.Burst, cfg.MaxKeys)
	if err != nil {
		return nil, err
	}
	return Middleware(limiter, errDomain, MiddlewareOpts{DryRun: cfg.DryRun}), nil
}

// Middleware limits the rate of HTTP requests per key.
// Rejected requests receive 503 with Retry-After header.
func Middleware(limiter Limiter, errDomain string, opts MiddlewareOpts) func(next http.Handler) http.Handler {
	getKey := opts.GetKey
	if getKey == nil {
		getKey = GetKeyByClientIP
	}
	return func(next http.Handler) http.Handler {
		return &handler{next: next, limiter: limiter, getKey: getKey, errDomain: errDomain, dryRun: opts.DryRun}
	}
}

type handler struct {
	next      http.Handler
	limiter   Limiter
	getKey    GetKeyFunc
	errDomain string
	dryRun    bool
}

func (h *handler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	key, bypass, err := h.getKey(r)
	if err != nil {
		logger.Error("failed to get key for rate limiting", log.Error(err))
		restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(h.errDomain), logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		logger.Error("rate limiting failed", log.String(LogFieldKey, key), log.Error(err))
		restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(h.errDomain), logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}

	if h.dryRun {
		logger.Warn("rate limit exceeded, continuing in dry run mode", log.String(LogFieldKey, key))
		h.next.ServeHTTP(rw, r)
		return
	}

	logger.Warn("rate limit exceeded", log.String(LogFieldKey, key), log.Duration("retry_after", retryAfter))
	secs := retryAfterSeconds(retryAfter)
	rw.Header().Set("Retry-After", strconv.Itoa(secs))
	restapi.RespondError(rw, http.StatusServiceUnavailable,
		restapi.NewError(h.errDomain, ErrCode, "Too many requests").AddContext("retryAfterSeconds", secs), logger)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
