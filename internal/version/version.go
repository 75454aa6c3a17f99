// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// String describes the build. Commit and date fall back to the VCS stamp Go
// embeds when ldflags did not set them.
func String() string {
	commit, date := Commit, Date
	if info, ok := readBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch {
			case setting.Key == "vcs.revision" && commit == "none":
				commit = shortRevision(setting.Value)
			case setting.Key == "vcs.time" && date == "unknown":
				date = setting.Value
			}
		}
	}
	return fmt.Sprintf("nexa %s (commit=%s, date=%s, go=%s)", Version, commit, date, runtime.Version())
}

// UserAgent identifies nexa to the feedback API.
func UserAgent() string {
	return fmt.Sprintf("nexa/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
