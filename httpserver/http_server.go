/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package httpserver provides an HTTP server unit with a chi router and a predefined chain of middlewares
// (request id, logging, panic recovery, request metrics and request body limit).
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/service"
)

// Opts configures an HTTPServer.
type Opts struct {
	// Name distinguishes servers of one process in logs.
	Name string
	// Routes adds application routes.
	Routes func(router chi.Router)
	// HealthCheck enables GET /healthz.
	HealthCheck HealthCheck
	// MetricsHandler enables GET /metrics.
	MetricsHandler http.Handler
	// HTTPRequestMetrics enables the request metrics middleware.
	HTTPRequestMetrics *middleware.HTTPRequestMetricsCollector
	// Listener is used instead of listening on the configured address.
	Listener net.Listener
}

// HTTPServer is a service.Unit serving a chi router.
type HTTPServer struct {
	Name            string
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener net.Listener
	port     atomic.Int32

	mu         sync.Mutex
	serverDone chan struct{} // closed when Start returns
}

var _ service.Unit = (*HTTPServer)(nil)

// New creates an HTTPServer with the default middlewares and routes from opts.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer {
	if opts.Name == "" {
		opts.Name = "application"
	}
	router := NewRouter(cfg, logger, opts)
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Timeouts.Read),
		ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
		WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
	}
	return &HTTPServer{
		Name:            opts.Name,
		HTTPServer:      srv,
		HTTPRouter:      router,
		Logger:          logger.With(log.String("server", opts.Name)),
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
	}
}

// Start serves until the server is stopped. Listen and serve failures go to fatalError.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.mu.Lock()
	s.serverDone = done
	s.mu.Unlock()

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting HTTP server...",
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)

	ln := s.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port)) //nolint:gosec // ports fit into int32
	}

	err := s.HTTPServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("HTTP server closed")
		return
	}
	logger.Error("HTTP server error", log.Error(err))
	fatalError <- err
}

// Stop closes the server. A graceful stop waits for in-flight requests up to ShutdownTimeout.
func (s *HTTPServer) Stop(gracefully bool) error {
	defer s.waitStartReturned()

	if !gracefully {
		s.Logger.Info("closing HTTP server...")
		err := s.HTTPServer.Close()
		if err != nil {
			s.Logger.Error("HTTP server closing error", log.Error(err))
		}
		return err
	}

	s.Logger.Info("shutting down HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("HTTP server shut down")
	return nil
}

func (s *HTTPServer) waitStartReturned() {
	s.mu.Lock()
	done := s.serverDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetPort returns the TCP port the server listens on, 0 before Start.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
