package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/nexa/internal/analytics"
	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/executor"
	"github.com/rbright/nexa/internal/feedback"
	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/interpreter"
	"github.com/rbright/nexa/internal/session"
	"github.com/rbright/nexa/internal/storage"
	"github.com/rbright/nexa/internal/version"
	"github.com/rbright/nexa/internal/wakeword"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func loadGrammar(cfg config.InterpreterConfig) (grammar.Grammar, error) {
	if strings.TrimSpace(cfg.GrammarFile) == "" {
		return grammar.Default(), nil
	}
	return grammar.LoadFile(cfg.GrammarFile)
}

func thresholds(cfg config.InterpreterConfig) interpreter.Thresholds {
	return interpreter.Thresholds{
		ExactConfidence:  cfg.ExactConfidence,
		ContainsFloor:    cfg.ContainsFloor,
		ContainsSpan:     cfg.ContainsSpan,
		SearchConfidence: cfg.SearchConfidence,
		WordSimilarity:   cfg.WordSimilarity,
		MatchRatio:       cfg.MatchRatio,
		FuzzyFloor:       cfg.FuzzyFloor,
		FuzzySpan:        cfg.FuzzySpan,
	}
}

func newInterpreter(cfg config.InterpreterConfig) (*interpreter.Interpreter, error) {
	g, err := loadGrammar(cfg)
	if err != nil {
		return nil, err
	}
	t := thresholds(cfg)
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("interpreter thresholds: %w", err)
	}
	return interpreter.New(g, t), nil
}

func newExecutor(logger *slog.Logger, cfg config.ExecutorConfig, g grammar.Grammar) *executor.Executor {
	return executor.New(logger, executor.Options{
		MinConfidence: cfg.MinConfidence,
		Timeout:       millis(cfg.TimeoutMS),
		Labels:        g.LabelFor,
	})
}

func wakeOptions(cfg config.WakeWordConfig) wakeword.Options {
	return wakeword.Options{
		WakeWord:        cfg.Phrase,
		Sensitivity:     cfg.Sensitivity,
		WordSimilarity:  cfg.WordSimilarity,
		MatchRatio:      cfg.MatchRatio,
		Cooldown:        millis(cfg.CooldownMS),
		RestartDelay:    millis(cfg.RestartDelayMS),
		EndRestartDelay: millis(cfg.EndRestartDelayMS),
	}
}

func sessionOptions(cfg config.SessionConfig) session.Options {
	return session.Options{
		ListeningTimeout:         millis(cfg.ListeningTimeoutMS),
		MinRecognitionConfidence: cfg.MinRecognitionConfidence,
		SpeakResponses:           cfg.SpeakResponses,
		AutoFeedback:             cfg.AutoFeedback,
		AutoFeedbackConfidence:   cfg.AutoFeedbackConfidence,
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	store, err := storage.Open(ctx, storage.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}
	return store, nil
}

func newTracker(logger *slog.Logger, store storage.Store, cfg config.AnalyticsConfig) *analytics.Tracker {
	return analytics.New(logger, store, analytics.Limits{
		Commands: cfg.MaxCommands,
		Errors:   cfg.MaxErrors,
		Sessions: cfg.MaxSessions,
	})
}

func newFeedbackClient(logger *slog.Logger, store storage.Store, cfg config.FeedbackConfig) (*feedback.Client, error) {
	return feedback.New(logger, store, feedback.Options{
		Endpoint:        cfg.Endpoint,
		Timeout:         millis(cfg.TimeoutMS),
		UserAgent:       version.UserAgent(),
		SyncConcurrency: cfg.SyncConcurrency,
	})
}
