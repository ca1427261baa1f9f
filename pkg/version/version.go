// Package version reports the build identity of node4j binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version, injected at build time with
// -ldflags "-X github.com/gkeb/node4j/pkg/version.Version=v1.2.3".
var Version = "dev"

// GitCommit is the git commit hash, injected at build time.
var GitCommit = "unknown"

// BuildTime is the timestamp when the binary was built, injected at build time.
var BuildTime = "unknown"

// BuildInfo is the structured form printed by "node4j version -o json".
type BuildInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildTime     string `json:"build_time"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
	DriverVersion string `json:"driver_version,omitempty"`
}

const driverModule = "github.com/neo4j/neo4j-go-driver/v5"

// Info returns the build identity. Values not injected at build time are
// filled from the module build information when available.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	for _, dep := range bi.Deps {
		if dep.Path == driverModule {
			info.DriverVersion = dep.Version
		}
	}
	return info
}

// String returns a one-line version string.
func String() string {
	info := Info()
	return fmt.Sprintf("node4j %s (commit: %s, built: %s, go: %s)",
		info.Version, info.Commit, info.BuildTime, info.GoVersion)
}
