/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional HTTP server exposing pprof handlers under /debug.
package profserver

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-batchproxy/httpserver"
	"github.com/acronis/go-batchproxy/log"
)

// New creates a new HTTP server (pprof) for profiling.
// It uses the default httpserver settings except the address, and has no request body limit.
func New(cfg *Config, logger log.FieldLogger) *httpserver.HTTPServer {
	serverCfg := httpserver.NewDefaultConfig(httpserver.WithKeyPrefix(cfgDefaultKeyPrefix))
	serverCfg.Address = cfg.Address
	serverCfg.Limits.MaxBodySize = 0
	// Profiles may take longer than the default write timeout (e.g. /debug/pprof/profile?seconds=60).
	serverCfg.Timeouts.Write = 0
	return httpserver.New(serverCfg, logger, httpserver.Opts{
		Name: "profiling",
		Routes: func(router chi.Router) {
			router.Mount("/debug", chimiddleware.Profiler())
		},
	})
}
