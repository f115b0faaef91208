/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package app wires the batch proxy components into service units.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-batchproxy/connpool"
	"github.com/acronis/go-batchproxy/httpserver"
	"github.com/acronis/go-batchproxy/internal/batch"
	"github.com/acronis/go-batchproxy/internal/dispatch"
	"github.com/acronis/go-batchproxy/internal/frontend"
	"github.com/acronis/go-batchproxy/internal/metrics"
	"github.com/acronis/go-batchproxy/internal/ratelimit"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/profserver"
	"github.com/acronis/go-batchproxy/service"
)

// HealthCheckComponentWorkers is the health-check component reporting whether batch workers are running.
const HealthCheckComponentWorkers = "workers"

// Opts represents options for App.
type Opts struct {
	// ProxyListener and MetricsListener are used instead of listening on the configured addresses when not nil.
	ProxyListener   net.Listener
	MetricsListener net.Listener
}

// App is the assembled batch proxy.
type App struct {
	Orchestrator  *batch.Orchestrator
	Pool          *connpool.Pool[*dispatch.Conn]
	Metrics       *metrics.Registry
	ProxyServer   *httpserver.HTTPServer
	MetricsServer *httpserver.HTTPServer

	units          []service.Unit
	workersRunning atomic.Bool
}

// New creates the App from the configuration. Nothing is started until the App's unit is started.
func New(cfg *AppConfig, logger log.FieldLogger, opts Opts) (*App, error) {
	a := &App{Metrics: metrics.NewRegistry()}

	connFactory := dispatch.NewConnFactory(cfg.Dispatch, logger, dispatch.ConnFactoryOpts{
		CreateRate:  cfg.Pool.CreateRate,
		CreateBurst: cfg.Pool.CreateBurst,
		Collector:   a.Metrics.Downstream,
	})
	a.Pool = connpool.NewWithOpts[*dispatch.Conn](cfg.Pool.Capacity, connFactory.New, connpool.Opts[*dispatch.Conn]{
		Close: func(conn *dispatch.Conn) { conn.Close() },
	})
	a.Orchestrator = batch.New(cfg.Queue.Capacity, a.Pool, dispatch.NewDispatcher(cfg.Dispatch), logger, batch.Opts{
		Workers:        cfg.Batch.Workers,
		RetryTransient: cfg.Batch.RetryTransient,
		Metrics:        a.Metrics,
	})
	a.Metrics.MustRegisterStats(a.Orchestrator)

	var proxyMiddlewares []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		rateLimitMiddleware, err := ratelimit.NewMiddleware(cfg.RateLimit, frontend.ErrDomain)
		if err != nil {
			return nil, fmt.Errorf("create rate limit middleware: %w", err)
		}
		proxyMiddlewares = append(proxyMiddlewares, rateLimitMiddleware)
	}

	a.ProxyServer = httpserver.New(cfg.Server, logger, httpserver.Opts{
		Name:               "proxy",
		Routes:             frontend.ProxyRoutes(frontend.NewProxyHandler(a.Orchestrator, cfg.Batch), proxyMiddlewares...),
		HTTPRequestMetrics: a.Metrics.HTTPRequests,
		Listener:           opts.ProxyListener,
	})
	a.MetricsServer = httpserver.New(cfg.MetricsServer, logger, httpserver.Opts{
		Name:           "metrics",
		Routes:         frontend.AdminRoutes(frontend.NewCapacityHandler(a.Orchestrator)),
		HealthCheck:    a.healthCheck,
		MetricsHandler: a.Metrics.Handler(),
		Listener:       opts.MetricsListener,
	})

	a.units = []service.Unit{
		a.ProxyServer,
		a.MetricsServer,
		service.NewWorkerUnit(service.WorkerFunc(func(ctx context.Context) error {
			a.workersRunning.Store(true)
			defer a.workersRunning.Store(false)
			return a.Orchestrator.Run(ctx)
		})),
	}
	if idleTimeout := time.Duration(cfg.Pool.IdleTimeout); idleTimeout > 0 {
		reapLogger := logger.With(log.String("worker", "idle-conn-reaper"))
		reaper := service.WorkerFunc(func(ctx context.Context) error {
			if n := a.Pool.ReapIdle(idleTimeout); n > 0 {
				reapLogger.Debug("idle downstream connections closed", log.Int("count", n))
			}
			return nil
		})
		a.units = append(a.units, service.NewWorkerUnit(service.NewPeriodicWorkerWithOpts(
			reaper, time.Duration(cfg.Pool.ReapInterval), logger, service.PeriodicWorkerOpts{Name: "idle-conn-reaper"})))
	}
	if cfg.ProfServer.Enabled {
		a.units = append(a.units, profserver.New(cfg.ProfServer, logger))
	}
	return a, nil
}

// Unit returns the service unit that starts and stops all parts of the App.
func (a *App) Unit() service.Unit {
	return service.NewCompositeUnit(a.units...)
}

func (a *App) healthCheck(_ context.Context) (httpserver.HealthCheckResult, error) {
	status := httpserver.HealthCheckStatusOK
	if !a.workersRunning.Load() {
		status = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{HealthCheckComponentWorkers: status}, nil
}
