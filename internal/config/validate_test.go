package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty wake word", mutate: func(c *Config) { c.WakeWord.Phrase = " " }, wantErr: "wake_word.phrase"},
		{name: "sensitivity above one", mutate: func(c *Config) { c.WakeWord.Sensitivity = 1.2 }, wantErr: "wake_word.sensitivity"},
		{name: "negative cooldown", mutate: func(c *Config) { c.WakeWord.CooldownMS = -1 }, wantErr: "wake_word.cooldown_ms"},
		{name: "zero executor timeout", mutate: func(c *Config) { c.Executor.TimeoutMS = 0 }, wantErr: "executor.timeout_ms"},
		{name: "fuzzy band overlaps contains", mutate: func(c *Config) { c.Interpreter.FuzzySpan = 0.4 }, wantErr: "fuzzy_floor"},
		{name: "contains above exact", mutate: func(c *Config) { c.Interpreter.ContainsSpan = 0.3 }, wantErr: "contains_floor"},
		{name: "unknown recognizer", mutate: func(c *Config) { c.Recognizer.Backend = "whisper" }, wantErr: "recognizer.backend"},
		{name: "empty grpc", mutate: func(c *Config) { c.Recognizer.GRPC = "" }, wantErr: "recognizer.grpc"},
		{name: "relative base url", mutate: func(c *Config) { c.Navigation.BaseURL = "/app" }, wantErr: "navigation.base_url"},
		{name: "empty open command", mutate: func(c *Config) { c.Navigation.Open = CommandConfig{} }, wantErr: "navigation.open_cmd"},
		{name: "logout raw but empty argv", mutate: func(c *Config) { c.System.Logout = CommandConfig{Raw: "  "} }, wantErr: "system.logout_cmd"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "etcd" }, wantErr: "storage.backend"},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Backend = "redis" }, wantErr: "storage.redis_addr"},
		{name: "relative feedback endpoint", mutate: func(c *Config) { c.Feedback.Endpoint = "feedback" }, wantErr: "feedback.endpoint"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Server.Driver = "postgres" }, wantErr: "server.dsn"},
		{name: "zero rate limit", mutate: func(c *Config) { c.Server.RateLimit = 0 }, wantErr: "server.rate_limit"},
		{name: "indicator without app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "desktop_app_name"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "memory"
	cfg.Speech.Speak = CommandConfig{}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
}

func TestValidateWakeWordDisabledAllowsEmptyPhrase(t *testing.T) {
	cfg := Default()
	cfg.WakeWord.Enable = false
	cfg.WakeWord.Phrase = ""

	_, err := Validate(cfg)
	require.NoError(t, err)
}
