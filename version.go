package rediskv

import (
	"runtime"
	"runtime/debug"
)

// Version is the rediskv release
const Version = "0.1.0"

// Build metadata. Set with -ldflags "-X"; when empty, VersionInfo falls back
// to the VCS stamp the Go toolchain embeds in the binary.
var (
	GitCommit string
	BuildTime string
)

// VersionInfo returns the release, build metadata and Go runtime version
func VersionInfo() map[string]string {
	info := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}

	commit, built := GitCommit, BuildTime
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
				}
			case "vcs.time":
				if built == "" {
					built = setting.Value
				}
			}
		}
	}

	if commit != "" {
		info["commit"] = commit
	}
	if built != "" {
		info["buildTime"] = built
	}

	return info
}
