package config

import (
	"strings"
	"testing"
)

func TestParseValidConfig(t *testing.T) {
	input := `
{
  // passive trigger
  "wake_word": {
    "phrase": "hey nexa",
    "sensitivity": 0.6,
    "cooldown_ms": 1500,
  },
  "interpreter": {"grammar_file": "/etc/nexa/grammar.yaml"},
  "executor": {"min_confidence": 0.4, "timeout_ms": 3000},
  "session": {"enable_on_start": false, "auto_feedback": false},
  "recognizer": {"grpc": "10.0.0.5:50051", "language_code": "en-GB"},
  "audio": {"input": "Elgato"},
  "navigation": {"base_url": "https://app.example.com", "open_cmd": "firefox --new-tab {url}"},
  "system": {"logout_cmd": "loginctl terminate-session self"},
  "storage": {"backend": "redis", "redis_addr": "127.0.0.1:6379", "redis_db": 2},
  "analytics": {"max_commands": 50},
  "feedback": {"endpoint": "https://feedback.example.com", "sync_concurrency": 2},
  "server": {"listen": ":9000", "driver": "postgres", "dsn": "postgres://nexa@localhost/nexa"},
  "indicator": {"sound_enable": false, "text_listening": "Go ahead"},
  "log": {"level": "warn", "max_backups": 1}
}
`

	cfg, _, err := Parse(input, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.WakeWord.Sensitivity != 0.6 || cfg.WakeWord.CooldownMS != 1500 {
		t.Fatalf("unexpected wake word config: %+v", cfg.WakeWord)
	}
	if cfg.Interpreter.GrammarFile != "/etc/nexa/grammar.yaml" {
		t.Fatalf("unexpected grammar file: %s", cfg.Interpreter.GrammarFile)
	}
	if cfg.Session.EnableOnStart || cfg.Session.AutoFeedback {
		t.Fatalf("expected session toggles disabled: %+v", cfg.Session)
	}
	if cfg.Recognizer.GRPC != "10.0.0.5:50051" || cfg.Recognizer.LanguageCode != "en-GB" {
		t.Fatalf("unexpected recognizer config: %+v", cfg.Recognizer)
	}
	if got := strings.Join(cfg.Navigation.Open.Argv, "|"); got != "firefox|--new-tab|{url}" {
		t.Fatalf("unexpected open argv: %s", got)
	}
	if len(cfg.System.Logout.Argv) != 3 {
		t.Fatalf("unexpected logout argv: %v", cfg.System.Logout.Argv)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisDB != 2 {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Server.Driver != "postgres" || cfg.Server.Listen != ":9000" {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Indicator.SoundEnable || cfg.Indicator.TextListening != "Go ahead" {
		t.Fatalf("unexpected indicator config: %+v", cfg.Indicator)
	}
	if cfg.Log.Level != "warn" || cfg.Log.MaxBackups != 1 {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	// Untouched sections keep their defaults.
	if cfg.Analytics.MaxErrors != Default().Analytics.MaxErrors {
		t.Fatalf("expected default analytics.max_errors, got %d", cfg.Analytics.MaxErrors)
	}
}

func TestParseEmptyContentReturnsBase(t *testing.T) {
	cfg, _, err := Parse("  \n", Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.WakeWord.Phrase != "hey nexa" {
		t.Fatalf("unexpected wake word: %q", cfg.WakeWord.Phrase)
	}
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"foo": {"bar": 1}}`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseNonObjectFails(t *testing.T) {
	_, _, err := Parse(`wake_word.phrase = "hey nexa"`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "JSONC object") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseRunsValidation(t *testing.T) {
	_, _, err := Parse(`{"storage": {"backend": "etcd"}}`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("unexpected error: %v", err)
	}
}
