package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "nexa"

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", appDir, "config.jsonc"), nil
}

// StateDir returns $XDG_STATE_HOME/nexa, falling back to ~/.local/state/nexa.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for state directory")
	}
	return filepath.Join(home, ".local", "state", appDir), nil
}

// resolveStatePaths fills empty file locations with state-directory defaults.
func resolveStatePaths(cfg *Config) error {
	needsState := cfg.Log.Path == "" ||
		(cfg.Storage.Path == "" && (cfg.Storage.Backend == "sqlite" || cfg.Storage.Backend == "file")) ||
		(cfg.Server.DSN == "" && cfg.Server.Driver == "sqlite")
	if !needsState {
		return nil
	}
	dir, err := StateDir()
	if err != nil {
		return err
	}
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(dir, "log.jsonl")
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case "sqlite":
			cfg.Storage.Path = filepath.Join(dir, "nexa.db")
		case "file":
			cfg.Storage.Path = filepath.Join(dir, "store")
		}
	}
	if cfg.Server.DSN == "" && cfg.Server.Driver == "sqlite" {
		cfg.Server.DSN = filepath.Join(dir, "feedback.db")
	}
	return nil
}
