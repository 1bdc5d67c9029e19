// Package version exposes build metadata for the orbit binary.
package version

import (
	"runtime/debug"
)

var (
	// Version is the semantic version of the binary, injected at link time.
	Version = "dev"

	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC 3339 form.
	Date = "unknown"
)

// InitBinaryVersion fills in Commit and Date from the embedded build info
// when they were not injected through linker flags.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = setting.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = setting.Value
			}
		}
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
