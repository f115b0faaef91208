/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package buildinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *buildinfo.BuildInfo
		expectedVer string
	}{
		{
			name:        "main module",
			buildInfo:   &buildinfo.BuildInfo{Main: debug.Module{Path: moduleName, Version: "v1.0.0"}},
			expectedVer: "v1.0.0",
		},
		{
			name: "dependency",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: "example.com/app"},
				Deps: []*debug.Module{{Path: moduleName, Version: "v1.2.3"}},
			},
			expectedVer: "v1.2.3",
		},
		{
			name: "dependency, v2",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "/v2", Version: "v2.0.0"}},
			},
			expectedVer: "v2.0.0",
		},
		{
			name: "not found",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: moduleName + "-extra", Version: "v1.0.0"}},
			},
			expectedVer: "",
		},
		{
			name:        "nil build info",
			expectedVer: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedVer, extractVersion(tt.buildInfo, moduleName))
		})
	}
}

func TestVersion(t *testing.T) {
	require.NotEmpty(t, Version())
	require.True(t, strings.HasPrefix(UserAgent(), ShortName+"/"))
}

func TestNewPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector("batchproxy")
	require.Equal(t, 1, testutil.CollectAndCount(c, "batchproxy_build_info"))
	require.Equal(t, float64(1), testutil.ToFloat64(c))
}
