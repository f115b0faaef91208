/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/acronis/go-batchproxy/log"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// LoggingOpts configures the Logging middleware.
type LoggingOpts struct {
	// RequestStart adds a "request started" entry before the handler is called.
	RequestStart bool
	// ExcludedEndpoints are paths whose successful responses are not logged.
	ExcludedEndpoints []string
}

// Logging logs every completed request and puts a logger with the request ids into the request context.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is Logging with options.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, p := range opts.ExcludedEndpoints {
		excluded[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			startTime, ctx := requestStartTime(r.Context())

			reqLogger := logger.With(
				log.String("request_id", GetRequestIDFromContext(ctx)),
				log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
			)
			accessLogger := reqLogger.With(requestLogFields(r)...)

			_, quiet := excluded[r.URL.Path]
			if opts.RequestStart && !quiet {
				accessLogger.Info("request started")
			}

			wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
			next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, reqLogger)))

			status := responseStatus(wrw)
			if quiet && status < http.StatusBadRequest {
				return
			}
			elapsed := time.Since(startTime)
			accessLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()),
				log.Int64("duration_ms", elapsed.Milliseconds()),
				log.Int("status", status),
				log.Int("bytes_sent", wrw.BytesWritten()),
			)
		})
	}
}

func requestLogFields(r *http.Request) []log.Field {
	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.RequestURI),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String("user_agent", r.UserAgent()),
	}
	if origin := originAddr(r); origin != "" {
		fields = append(fields, log.String("origin_addr", origin))
	}
	return fields
}

// originAddr returns the client address reported by a reverse proxy in front of the server, if any.
func originAddr(r *http.Request) string {
	if fwd := r.Header.Get(headerForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}
