package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func setBuild(t *testing.T, version, commit, date string, info *debug.BuildInfo) {
	t.Helper()
	origVersion, origCommit, origDate, origRead := Version, Commit, Date, readBuildInfo
	t.Cleanup(func() {
		Version, Commit, Date, readBuildInfo = origVersion, origCommit, origDate, origRead
	})
	Version, Commit, Date = version, commit, date
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestStringIncludesBuildMetadata(t *testing.T) {
	setBuild(t, "1.2.3", "abc123", "2026-02-18", &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "ffffffffffffffff"},
	}})

	got := String()
	require.Contains(t, got, "nexa 1.2.3")
	require.Contains(t, got, "commit=abc123")
	require.Contains(t, got, "date=2026-02-18")
	require.Contains(t, got, "go="+runtime.Version())
}

func TestStringFallsBackToVCSStamp(t *testing.T) {
	setBuild(t, "dev", "none", "unknown", &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	}})

	got := String()
	require.Contains(t, got, "commit=0123456789ab,")
	require.Contains(t, got, "date=2026-10-01T12:00:00Z")

	setBuild(t, "dev", "none", "unknown", nil)
	require.Contains(t, String(), "commit=none, date=unknown")
}

func TestUserAgent(t *testing.T) {
	setBuild(t, "1.2.3", "none", "unknown", nil)
	require.Equal(t, "nexa/1.2.3 ("+runtime.GOOS+"/"+runtime.GOARCH+")", UserAgent())
}
