/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo provides the version of the library as it's recorded in the build info of the binary.
package libinfo

import (
	"debug/buildinfo"
	"maps"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	libShortName = "go-validatorkit"
	moduleName   = "github.com/acronis/" + libShortName
	unknownVer   = "v0.0.0"
)

// PrometheusLibVersionLabel is the name of the constant label with the library version.
const PrometheusLibVersionLabel = "go_validatorkit_version"

// AddPrometheusLibVersionLabel returns a copy of labels with the library version label added.
func AddPrometheusLibVersionLabel(labels prometheus.Labels) prometheus.Labels {
	res := make(prometheus.Labels, len(labels)+1)
	maps.Copy(res, labels)
	res[PrometheusLibVersionLabel] = GetLibVersion()
	return res
}

// UserAgent returns the product token of the library for outgoing HTTP requests.
func UserAgent() string {
	return libShortName + "/" + GetLibVersion()
}

var libVersion = sync.OnceValue(func() string {
	buildInfo, _ := debug.ReadBuildInfo()
	if ver := extractLibVersion(buildInfo, moduleName); ver != "" {
		return ver
	}
	return unknownVer
})

// GetLibVersion returns the library version or "v0.0.0" if it's unknown (e.g. in tests).
func GetLibVersion() string {
	return libVersion()
}

// extractLibVersion looks for modName (optionally with a major version suffix) in the build info.
// The main module is checked first, so the version is known when the library itself is being built.
func extractLibVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	if ver := buildInfo.Main.Version; isModule(buildInfo.Main.Path, modName) && ver != "" && ver != "(devel)" {
		return ver
	}
	for _, dep := range buildInfo.Deps {
		if isModule(dep.Path, modName) {
			return dep.Version
		}
	}
	return ""
}

// isModule reports whether path is modName or modName/vN.
func isModule(path, modName string) bool {
	rest, ok := strings.CutPrefix(path, modName)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	major, ok := strings.CutPrefix(rest, "/v")
	if !ok || major == "" {
		return false
	}
	return strings.Trim(major, "0123456789") == ""
}
