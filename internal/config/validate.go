package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.WakeWord.Enable && strings.TrimSpace(cfg.WakeWord.Phrase) == "" {
		return nil, fmt.Errorf("wake_word.phrase must not be empty when wake_word.enable=true")
	}
	for key, v := range map[string]float64{
		"wake_word.sensitivity":              cfg.WakeWord.Sensitivity,
		"wake_word.word_similarity":          cfg.WakeWord.WordSimilarity,
		"wake_word.match_ratio":              cfg.WakeWord.MatchRatio,
		"executor.min_confidence":            cfg.Executor.MinConfidence,
		"session.min_recognition_confidence": cfg.Session.MinRecognitionConfidence,
		"session.auto_feedback_confidence":   cfg.Session.AutoFeedbackConfidence,
		"interpreter.exact_confidence":       cfg.Interpreter.ExactConfidence,
		"interpreter.search_confidence":      cfg.Interpreter.SearchConfidence,
		"interpreter.word_similarity":        cfg.Interpreter.WordSimilarity,
		"interpreter.match_ratio":            cfg.Interpreter.MatchRatio,
	} {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%s must be within [0, 1]", key)
		}
	}
	for key, v := range map[string]int{
		"wake_word.cooldown_ms":          cfg.WakeWord.CooldownMS,
		"wake_word.restart_delay_ms":     cfg.WakeWord.RestartDelayMS,
		"wake_word.end_restart_delay_ms": cfg.WakeWord.EndRestartDelayMS,
		"indicator.error_timeout_ms":     cfg.Indicator.ErrorTimeoutMS,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%s must be >= 0", key)
		}
	}
	for key, v := range map[string]int{
		"executor.timeout_ms":          cfg.Executor.TimeoutMS,
		"session.listening_timeout_ms": cfg.Session.ListeningTimeoutMS,
		"recognizer.dial_timeout_ms":   cfg.Recognizer.DialTimeoutMS,
		"feedback.timeout_ms":          cfg.Feedback.TimeoutMS,
		"feedback.sync_interval_ms":    cfg.Feedback.SyncIntervalMS,
		"feedback.sync_concurrency":    cfg.Feedback.SyncConcurrency,
		"analytics.max_commands":       cfg.Analytics.MaxCommands,
		"analytics.max_errors":         cfg.Analytics.MaxErrors,
		"analytics.max_sessions":       cfg.Analytics.MaxSessions,
		"log.max_size_mb":              cfg.Log.MaxSizeMB,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("%s must be > 0", key)
		}
	}

	in := cfg.Interpreter
	if in.ContainsSpan < 0 || in.FuzzySpan < 0 {
		return nil, fmt.Errorf("interpreter spans must be >= 0")
	}
	if in.FuzzyFloor+in.FuzzySpan >= in.ContainsFloor {
		return nil, fmt.Errorf("interpreter.fuzzy_floor + fuzzy_span must stay below interpreter.contains_floor")
	}
	if in.ContainsFloor+in.ContainsSpan > in.ExactConfidence {
		return nil, fmt.Errorf("interpreter.contains_floor + contains_span must not exceed interpreter.exact_confidence")
	}
	if in.FuzzyFloor < 0 {
		return nil, fmt.Errorf("interpreter.fuzzy_floor must be >= 0")
	}

	switch cfg.Recognizer.Backend {
	case "grpc":
		if strings.TrimSpace(cfg.Recognizer.GRPC) == "" {
			return nil, fmt.Errorf("recognizer.grpc must not be empty when recognizer.backend=grpc")
		}
	case "stdin":
	default:
		return nil, fmt.Errorf("recognizer.backend must be one of: grpc, stdin")
	}
	if strings.TrimSpace(cfg.Recognizer.LanguageCode) == "" {
		return nil, fmt.Errorf("recognizer.language_code must not be empty")
	}

	base, err := url.Parse(cfg.Navigation.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("navigation.base_url must be an absolute URL")
	}
	if len(cfg.Navigation.Open.Argv) == 0 {
		return nil, fmt.Errorf("navigation.open_cmd must not be empty")
	}
	if cfg.System.Logout.Raw != "" && len(cfg.System.Logout.Argv) == 0 {
		return nil, fmt.Errorf("system.logout_cmd is configured but empty")
	}
	if cfg.Session.SpeakResponses && len(cfg.Speech.Speak.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "session.speak_responses=true but speech.speak_cmd is empty; responses stay silent"})
	}

	switch cfg.Storage.Backend {
	case "memory", "file", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			return nil, fmt.Errorf("storage.redis_addr must not be empty when storage.backend=redis")
		}
	default:
		return nil, fmt.Errorf("storage.backend must be one of: memory, file, sqlite, redis")
	}
	if cfg.Storage.Backend == "memory" {
		warnings = append(warnings, Warning{Message: "storage.backend=memory keeps analytics and queued feedback only until exit"})
	}

	if strings.TrimSpace(cfg.Feedback.Endpoint) != "" {
		endpoint, err := url.Parse(cfg.Feedback.Endpoint)
		if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
			return nil, fmt.Errorf("feedback.endpoint must be an absolute URL")
		}
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return nil, fmt.Errorf("server.listen must not be empty")
	}
	switch cfg.Server.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Server.DSN) == "" {
			return nil, fmt.Errorf("server.dsn must not be empty when server.driver=postgres")
		}
	default:
		return nil, fmt.Errorf("server.driver must be one of: sqlite, postgres")
	}
	if cfg.Server.RateLimit <= 0 || cfg.Server.RateBurst <= 0 {
		return nil, fmt.Errorf("server.rate_limit and server.rate_burst must be > 0")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return nil, fmt.Errorf("log.max_backups and log.max_age_days must be >= 0")
	}

	return warnings, nil
}
