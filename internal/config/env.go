package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile is the dotenv file read from the config directory.
const EnvFile = "nexa.env"

type envOverride struct {
	key   string
	apply func(cfg *Config, value string) error
}

var envOverrides = []envOverride{
	{key: "NEXA_WAKE_WORD", apply: func(cfg *Config, v string) error { cfg.WakeWord.Phrase = v; return nil }},
	{key: "NEXA_BASE_URL", apply: func(cfg *Config, v string) error { cfg.Navigation.BaseURL = v; return nil }},
	{key: "NEXA_FEEDBACK_ENDPOINT", apply: func(cfg *Config, v string) error { cfg.Feedback.Endpoint = v; return nil }},
	{key: "NEXA_STORAGE_BACKEND", apply: func(cfg *Config, v string) error { cfg.Storage.Backend = strings.ToLower(v); return nil }},
	{key: "NEXA_STORAGE_PATH", apply: func(cfg *Config, v string) error { cfg.Storage.Path = v; return nil }},
	{key: "NEXA_REDIS_ADDR", apply: func(cfg *Config, v string) error { cfg.Storage.RedisAddr = v; return nil }},
	{key: "NEXA_REDIS_PASSWORD", apply: func(cfg *Config, v string) error { cfg.Storage.RedisPassword = v; return nil }},
	{key: "NEXA_REDIS_DB", apply: func(cfg *Config, v string) error {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NEXA_REDIS_DB: %w", err)
		}
		cfg.Storage.RedisDB = db
		return nil
	}},
	{key: "NEXA_SERVER_LISTEN", apply: func(cfg *Config, v string) error { cfg.Server.Listen = v; return nil }},
	{key: "NEXA_SERVER_DRIVER", apply: func(cfg *Config, v string) error { cfg.Server.Driver = strings.ToLower(v); return nil }},
	{key: "NEXA_SERVER_DSN", apply: func(cfg *Config, v string) error { cfg.Server.DSN = v; return nil }},
	{key: "NEXA_RECOGNIZER_GRPC", apply: func(cfg *Config, v string) error { cfg.Recognizer.GRPC = v; return nil }},
	{key: "NEXA_LOG_LEVEL", apply: func(cfg *Config, v string) error { cfg.Log.Level = strings.ToLower(v); return nil }},
}

// applyEnv applies NEXA_* overrides. Values come from the process
// environment first, then from nexa.env beside the config file.
func applyEnv(cfg *Config, configPath string) ([]Warning, error) {
	envPath := filepath.Join(filepath.Dir(configPath), EnvFile)
	fileValues, err := godotenv.Read(envPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envPath, err)
		}
		fileValues = nil
	}

	var warnings []Warning
	for _, override := range envOverrides {
		value, ok := os.LookupEnv(override.key)
		if !ok {
			value, ok = fileValues[override.key]
		}
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		if err := override.apply(cfg, value); err != nil {
			return nil, err
		}
		warnings = append(warnings, Warning{Message: fmt.Sprintf("%s overrides config", override.key)})
	}
	return warnings, nil
}
