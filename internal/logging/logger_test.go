package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/config"
)

func TestNewDefaultsPathToStateDir(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	runtime, err := New(config.LogConfig{Level: "info", MaxSizeMB: 1})
	require.NoError(t, err)
	defer runtime.Close()
	require.Equal(t, filepath.Join(state, "nexa", "log.jsonl"), runtime.Path)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nexa.jsonl")

	runtime, err := New(config.LogConfig{Level: "debug", Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	runtime.Logger.Debug("unit-test-log", "component", "logging")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewHonorsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexa.jsonl")

	runtime, err := New(config.LogConfig{Level: "warn", Path: path, MaxSizeMB: 1})
	require.NoError(t, err)
	runtime.Logger.Info("dropped")
	runtime.Logger.Warn("kept")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(contents), "dropped")
	require.Contains(t, string(contents), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", want: slog.LevelInfo, wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
		require.Equal(t, tc.want, got)
	}
}
