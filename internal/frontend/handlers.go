/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package frontend contains the HTTP handlers of the batch proxy.
package frontend

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/internal/api"
	"github.com/acronis/go-batchproxy/internal/batch"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/restapi"
)

// ErrDomain is used in API errors of the admin endpoints.
const ErrDomain = "BatchProxy"

// Submitter runs a batch and returns per-item results.
type Submitter interface {
	Submit(ctx context.Context, ttl time.Duration, reqs []api.Request) []batch.Result
}

// CapacityController reads and changes the queue and pool capacities.
type CapacityController interface {
	Capacity() batch.Capacity
	SetCapacity(c batch.Capacity) error
}

// ProxyHandler serves POST /proxy.
// Malformed or oversized batch requests are answered with 400 and an empty body.
type ProxyHandler struct {
	submitter      Submitter
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

// NewProxyHandler creates a new ProxyHandler. Timeouts are taken from the batch configuration.
func NewProxyHandler(submitter Submitter, cfg *batch.Config) *ProxyHandler {
	return &ProxyHandler{
		submitter:      submitter,
		defaultTimeout: time.Duration(cfg.DefaultTimeout),
		maxTimeout:     time.Duration(cfg.MaxTimeout),
	}
}

func (h *ProxyHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := getLogger(r)

	batchReq, err := api.DecodeBatchRequest(r)
	if err != nil {
		logger.Warn("malformed batch request", log.Error(err))
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	ttl := batchReq.TTL(h.defaultTimeout, h.maxTimeout)
	results := h.submitter.Submit(r.Context(), ttl, batchReq.Requests)

	resp := api.BatchResponse{Responses: make([]api.Response, 0, len(results))}
	for i := range results {
		resp.Responses = append(resp.Responses, results[i].APIResponse())
	}
	restapi.RespondJSON(rw, resp, logger)
}

// ProxyRoutes returns routes of the proxy listener.
// Passed middlewares (e.g. the per-client rate limit) wrap the /proxy endpoint only.
func ProxyRoutes(h *ProxyHandler, mws ...func(http.Handler) http.Handler) func(router chi.Router) {
	return func(router chi.Router) {
		router.With(mws...).Method(http.MethodPost, "/proxy", h)
	}
}

// CapacityHandler serves GET and PUT /capacity on the admin (metrics) listener.
type CapacityHandler struct {
	controller CapacityController
}

// NewCapacityHandler creates a new CapacityHandler.
func NewCapacityHandler(controller CapacityController) *CapacityHandler {
	return &CapacityHandler{controller: controller}
}

func (h *CapacityHandler) get(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, h.controller.Capacity(), getLogger(r))
}

func (h *CapacityHandler) put(rw http.ResponseWriter, r *http.Request) {
	logger := getLogger(r)

	c := h.controller.Capacity()
	if err := restapi.DecodeRequestJSON(r, &c); err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrDomain, restapi.ErrCodeInvalidRequest, err.Error()), logger)
		return
	}
	if err := h.controller.SetCapacity(c); err != nil {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrDomain, restapi.ErrCodeInvalidRequest, err.Error()), logger)
		return
	}
	restapi.RespondJSON(rw, h.controller.Capacity(), logger)
}

// AdminRoutes returns routes of the admin (metrics) listener.
func AdminRoutes(h *CapacityHandler) func(router chi.Router) {
	return func(router chi.Router) {
		router.Get("/capacity", h.get)
		router.Put("/capacity", h.put)
	}
}

func getLogger(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return log.NewDisabledLogger()
}
