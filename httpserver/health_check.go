/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/restapi"
)

// StatusClientClosedRequest is the nginx status for requests the client gave up on before the response.
const StatusClientClosedRequest = 499

// HealthCheckComponentName names a component reported by the health-check.
type HealthCheckComponentName = string

// HealthCheckStatus is the state of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult maps components to their statuses.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck reports component statuses. An error means the check itself could not be done.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler serves GET /healthz: 200 when every component is OK, 503 otherwise.
type HealthCheckHandler struct {
	check HealthCheck
}

// NewHealthCheckHandler creates a HealthCheckHandler. A nil check reports no components.
func NewHealthCheckHandler(check HealthCheck) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) { return HealthCheckResult{}, ctx.Err() }
	}
	return &HealthCheckHandler{check: check}
}

func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	result, err := h.check(r.Context())
	if err == nil {
		// Checks may ignore the context, the client may be gone anyway.
		err = r.Context().Err()
	}
	switch {
	case errors.Is(err, context.Canceled):
		rw.WriteHeader(StatusClientClosedRequest)
		return
	case err != nil:
		if logger != nil {
			logger.Error("error while checking health", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	data := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	for name, st := range result {
		data.Components[name] = st == HealthCheckStatusOK
		if st != HealthCheckStatusOK {
			status = http.StatusServiceUnavailable
		}
	}
	restapi.RespondCodeAndJSON(rw, status, data, logger)
}
