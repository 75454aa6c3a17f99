// Package doctor runs runtime readiness diagnostics for config, recognizer, audio, storage, and the feedback API.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/nexa/internal/audio"
	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/recognizer"
	"github.com/rbright/nexa/internal/storage"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkGrammar(cfg.Config.Interpreter.GrammarFile))
	checks = append(checks, checkRecognizer(ctx, cfg.Config.Recognizer))
	if cfg.Config.Recognizer.Backend == "grpc" {
		checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	}

	checks = append(checks, checkCommand(cfg.Config.Navigation.Open.Argv, "navigation.open_cmd"))
	if len(cfg.Config.System.Logout.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.System.Logout.Argv, "system.logout_cmd"))
	}
	if len(cfg.Config.Speech.Speak.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Config.Speech.Speak.Argv, "speech.speak_cmd"))
	}

	checks = append(checks, checkStorage(ctx, cfg.Config.Storage))
	checks = append(checks, checkFeedbackAPI(ctx, cfg.Config.Feedback.Endpoint))

	return Report{Checks: checks}
}

// checkGrammar loads the grammar override, or reports the embedded grammar.
func checkGrammar(path string) Check {
	if strings.TrimSpace(path) == "" {
		g := grammar.Default()
		return Check{Name: "grammar", Pass: true, Message: fmt.Sprintf("embedded grammar %s (%d commands)", g.Version, len(g.All()))}
	}
	g, err := grammar.LoadFile(path)
	if err != nil {
		return Check{Name: "grammar", Pass: false, Message: err.Error()}
	}
	return Check{Name: "grammar", Pass: true, Message: fmt.Sprintf("loaded %q version %s (%d commands)", path, g.Version, len(g.All()))}
}

// checkRecognizer probes the gRPC recognizer, or accepts the typed-input backend.
func checkRecognizer(ctx context.Context, cfg config.RecognizerConfig) Check {
	if cfg.Backend == "stdin" {
		return Check{Name: "recognizer", Pass: true, Message: "reading typed lines from stdin"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := recognizer.Probe(probeCtx, cfg.GRPC); err != nil {
		return Check{Name: "recognizer", Pass: false, Message: fmt.Sprintf("grpc %q not ready: %v", cfg.GRPC, err)}
	}
	return Check{Name: "recognizer", Pass: true, Message: fmt.Sprintf("grpc ready at %s", cfg.GRPC)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkStorage opens the configured store and performs one read.
func checkStorage(ctx context.Context, cfg config.StorageConfig) Check {
	name := "storage." + cfg.Backend
	store, err := storage.Open(ctx, storage.OptionsFromConfig(cfg))
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	defer func() { _ = store.Close() }()

	if _, _, err := store.Get(ctx, "voice_analytics"); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("read failed: %v", err)}
	}
	switch cfg.Backend {
	case "file", "sqlite":
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("readable at %s", cfg.Path)}
	case "redis":
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("connected to %s", cfg.RedisAddr)}
	default:
		return Check{Name: name, Pass: true, Message: "in-memory; data is lost on exit"}
	}
}

// checkFeedbackAPI probes the feedback service health endpoint.
func checkFeedbackAPI(ctx context.Context, endpoint string) Check {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return Check{Name: "feedback.api", Pass: false, Message: "feedback.endpoint is empty"}
	}

	url := base + "/api/voice/health"
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: "feedback.api", Pass: false, Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// Feedback is queued offline, so an unreachable service is not fatal.
		return Check{Name: "feedback.api", Pass: true, Message: fmt.Sprintf("unreachable (%v); feedback will be queued", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "feedback.api", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "feedback.api", Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}
