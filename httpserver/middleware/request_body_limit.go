/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes uint64
	statusCode   int
}

// RequestBodyLimit is a middleware that sets the maximum allowed size for a request body.
// Requests whose Content-Length exceeds the limit are rejected with the given status code and an empty body.
// Bodies without Content-Length are limited while being read (restapi.RequestBodyTooLargeError).
func RequestBodyLimit(maxSizeBytes uint64, statusCode int) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next: next, maxSizeBytes: maxSizeBytes, statusCode: statusCode}
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > int64(h.maxSizeBytes) { //nolint:gosec // maxSizeBytes is a reasonable value
		if logger := GetLoggerFromContext(r.Context()); logger != nil {
			logger.Warn("request body is too large",
				log.Int64("content_length", r.ContentLength), log.Uint64("max_size_bytes", h.maxSizeBytes))
		}
		rw.WriteHeader(h.statusCode)
		return
	}
	restapi.SetRequestMaxBodySize(rw, r, h.maxSizeBytes)
	h.next.ServeHTTP(rw, r)
}
