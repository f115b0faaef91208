/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
)

// systemEndpoints is a list of endpoints which are not involved in request metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// NewRouter creates a new chi.Router with the default middlewares and the routes from opts.
// Unknown paths and methods are answered with an empty 404 and 405 respectively.
func NewRouter(cfg *Config, logger log.FieldLogger, opts Opts) chi.Router {
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts)

	if opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}
	if opts.HealthCheck != nil {
		router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck))
	}
	if opts.Routes != nil {
		opts.Routes(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusNotFound)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusMethodNotAllowed)
	})
	return router
}

func applyDefaultMiddlewaresToRouter(router chi.Router, cfg *Config, logger log.FieldLogger, opts Opts) {
	router.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	})

	router.Use(middleware.RequestID())

	router.Use(middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
		RequestStart:      cfg.Log.RequestStart,
		ExcludedEndpoints: cfg.Log.ExcludedEndpoints,
	}))

	router.Use(middleware.Recovery())

	if opts.HTTPRequestMetrics != nil {
		metricsMiddleware := middleware.HTTPRequestMetrics(opts.HTTPRequestMetrics, middleware.GetChiRoutePattern)
		router.Use(func(next http.Handler) http.Handler {
			withMetrics := metricsMiddleware(next)
			return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				for i := range systemEndpoints {
					if r.URL.Path == systemEndpoints[i] {
						next.ServeHTTP(rw, r)
						return
					}
				}
				withMetrics.ServeHTTP(rw, r)
			})
		})
	}

	// Oversized bodies are malformed requests.
	if cfg.Limits.MaxBodySize > 0 {
		router.Use(middleware.RequestBodyLimit(uint64(cfg.Limits.MaxBodySize), http.StatusBadRequest))
	}
}
