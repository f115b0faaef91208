/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-batchproxy/log"
)

// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents an options for Recovery middleware.
type RecoveryOpts struct {
	StackSize int
}

type recoveryHandler struct {
	next http.Handler
	opts RecoveryOpts
}

// Recovery is a middleware that recovers from panics, logs the panic value and a stacktrace,
// and responds with 500 HTTP status code and an empty body.
func Recovery() func(next http.Handler) http.Handler {
	return RecoveryWithOpts(RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery middleware.
func RecoveryWithOpts(opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &recoveryHandler{next: next, opts: opts}
	}
}

func (h *recoveryHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		logger := GetLoggerFromContext(r.Context())
		if p == http.ErrAbortHandler { //nolint:errorlint,goerr113
			// Sentinel panic for aborting a handler, net/http does not log it either.
			if logger != nil {
				logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
			}
			panic(p)
		}
		if logger != nil {
			var logFields []log.Field
			if h.opts.StackSize != 0 {
				stack := make([]byte, h.opts.StackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logFields = append(logFields, log.String("stack", string(stack)))
			}
			logger.Error(fmt.Sprintf("Panic: %+v", p), logFields...)
		}
		rw.WriteHeader(http.StatusInternalServerError)
	}()

	h.next.ServeHTTP(rw, r)
}
