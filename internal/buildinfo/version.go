/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo resolves the version of the batchproxy module the running binary was built from.
package buildinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ShortName is the short name of the application used in User-Agent and logs.
const ShortName = "batchproxy"

const moduleName = "github.com/acronis/go-" + ShortName

const defaultVersion = "v0.0.0"

// PrometheusVersionLabel is the label carrying the application version.
const PrometheusVersionLabel = "version"

var version string
var versionOnce sync.Once

// Version returns the module version or "v0.0.0" when it cannot be resolved (e.g. a "go run" build).
func Version() string {
	versionOnce.Do(func() {
		if bi, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(bi, moduleName)
		}
		if version == "" || version == "(devel)" {
			version = defaultVersion
		}
	})
	return version
}

// UserAgent returns the User-Agent value used for downstream requests.
func UserAgent() string {
	return ShortName + "/" + Version()
}

// NewPrometheusCollector returns a constant gauge reporting 1 with the version label.
func NewPrometheusCollector(namespace string) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information of the running binary.",
		ConstLabels: prometheus.Labels{PrometheusVersionLabel: Version()},
	}, func() float64 { return 1 })
}

// extractVersion looks for the module in the main module and then in the dependencies.
// The module path may carry a major version suffix ("moduleName/vX").
func extractVersion(bi *buildinfo.BuildInfo, modName string) string {
	if bi == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(bi.Main.Path) {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
