// Package version carries the build identity of the fishex binary.
package version

import (
	"runtime/debug"
)

const unknown = "unknown"

// Set with -ldflags "-X github.com/Sumatoshi-tech/fishex/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = unknown
	Date    = unknown
)

// InitBinaryVersion fills Version, Commit and Date from the module build
// info when they were not stamped at link time.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	applyBuildInfo(info)
}

func applyBuildInfo(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == unknown && setting.Value != "" {
				Commit = shortRevision(setting.Value)
			}
		case "vcs.time":
			if Date == unknown && setting.Value != "" {
				Date = setting.Value
			}
		}
	}
}

const shortRevisionLength = 12

func shortRevision(rev string) string {
	if len(rev) > shortRevisionLength {
		return rev[:shortRevisionLength]
	}

	return rev
}

// String formats the build identity for the version command.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
