/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts configures id generation of the RequestID middleware.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

func newXID() string { return xid.New().String() }

// RequestID keeps the X-Request-ID of the incoming request (or generates one when absent)
// and always generates a fresh internal id. Both go into the request context
// and into the X-Request-ID and X-Int-Request-ID response headers.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is RequestID with custom id generators. Nil generators fall back to xid.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	if opts.GenerateID == nil {
		opts.GenerateID = newXID
	}
	if opts.GenerateInternalID == nil {
		opts.GenerateInternalID = newXID
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if id == "" {
				id = opts.GenerateID()
			}
			intID := opts.GenerateInternalID()
			rw.Header().Set(headerRequestID, id)
			rw.Header().Set(headerInternalRequestID, intID)
			ctx := NewContextWithInternalRequestID(NewContextWithRequestID(r.Context(), id), intID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
