package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/config"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "navigation.open_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-open")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-open", "{url}"}, "navigation.open_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "navigation.open_cmd command is available")
}

func TestCheckGrammar(t *testing.T) {
	check := checkGrammar("")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "embedded grammar")

	check = checkGrammar(filepath.Join(t.TempDir(), "missing.yaml"))
	require.False(t, check.Pass)
}

func TestCheckRecognizer(t *testing.T) {
	check := checkRecognizer(context.Background(), config.RecognizerConfig{Backend: "stdin"})
	require.True(t, check.Pass)

	check = checkRecognizer(context.Background(), config.RecognizerConfig{Backend: "grpc", GRPC: " "})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "endpoint is empty")
}

func TestCheckStorage(t *testing.T) {
	check := checkStorage(context.Background(), config.StorageConfig{Backend: "file", Path: t.TempDir()})
	require.True(t, check.Pass)
	require.Equal(t, "storage.file", check.Name)

	check = checkStorage(context.Background(), config.StorageConfig{Backend: "memory"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "in-memory")

	check = checkStorage(context.Background(), config.StorageConfig{Backend: "tape"})
	require.False(t, check.Pass)
}

func TestCheckFeedbackAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(server.Close)

	check := checkFeedbackAPI(context.Background(), server.URL+"/")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "ready at")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(failing.Close)
	check = checkFeedbackAPI(context.Background(), failing.URL)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")

	check = checkFeedbackAPI(context.Background(), "")
	require.False(t, check.Pass)
}

func TestCheckFeedbackAPIUnreachableIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	check := checkFeedbackAPI(context.Background(), url)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "queued")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunChecksConfiguredCommands(t *testing.T) {
	binDir := t.TempDir()
	for _, name := range []string{"fake-open", "fake-logout"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	cfg := config.Default()
	cfg.Recognizer.Backend = "stdin"
	cfg.Navigation.Open = config.CommandConfig{Raw: "fake-open", Argv: []string{"fake-open"}}
	cfg.System.Logout = config.CommandConfig{Raw: "fake-logout", Argv: []string{"fake-logout"}}
	cfg.Speech.Speak = config.CommandConfig{}
	cfg.Storage = config.StorageConfig{Backend: "memory"}
	cfg.Feedback.Endpoint = ""

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})

	names := make(map[string]bool, len(report.Checks))
	for _, check := range report.Checks {
		names[check.Name] = check.Pass
	}
	require.True(t, names["fake-open"])
	require.True(t, names["fake-logout"])
	require.True(t, names["recognizer"])
	require.NotContains(t, names, "audio.device")
	require.False(t, names["feedback.api"])
	require.False(t, report.OK())
	require.Contains(t, report.String(), "not found; using defaults")
}
