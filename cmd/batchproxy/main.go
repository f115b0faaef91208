/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command batchproxy runs the batching HTTP proxy.
//
// Configuration is read once at startup from defaults, an optional YAML/JSON file (-config)
// and BATCHPROXY_* environment variables. LISTEN and METRICS_ADDRESS set the listen addresses.
package main

import (
	"flag"
	"fmt"
	golog "log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acronis/go-batchproxy/internal/app"
	"github.com/acronis/go-batchproxy/internal/buildinfo"
	"github.com/acronis/go-batchproxy/log"
	"github.com/acronis/go-batchproxy/service"
)

func main() {
	if err := runApp(); err != nil {
		golog.Fatal(err)
	}
}

func runApp() error {
	cfgPath := flag.String("config", "", "path to a YAML or JSON configuration file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration as YAML and exit")
	printVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println(buildinfo.Version())
		return nil
	}

	cfg, err := app.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *printConfig {
		return yaml.NewEncoder(os.Stdout).Encode(cfg)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	logger.Info("starting batch proxy", log.String("version", buildinfo.Version()))

	a, err := app.New(cfg, logger, app.Opts{})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return service.New(logger, a.Unit()).Start()
}
