package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	open := "xdg-open {url}"
	speak := "spd-say -e"

	return Config{
		WakeWord: WakeWordConfig{
			Enable:            true,
			Phrase:            "hey nexa",
			Sensitivity:       0.7,
			WordSimilarity:    0.75,
			MatchRatio:        0.7,
			CooldownMS:        2000,
			RestartDelayMS:    1000,
			EndRestartDelayMS: 100,
		},
		Interpreter: InterpreterConfig{
			ExactConfidence:  0.95,
			ContainsFloor:    0.8,
			ContainsSpan:     0.1,
			SearchConfidence: 0.9,
			WordSimilarity:   0.8,
			MatchRatio:       0.7,
			FuzzyFloor:       0.5,
			FuzzySpan:        0.25,
		},
		Executor: ExecutorConfig{MinConfidence: 0.5, TimeoutMS: 5000},
		Session: SessionConfig{
			EnableOnStart:            true,
			ListeningTimeoutMS:       10000,
			MinRecognitionConfidence: 0.2,
			SpeakResponses:           true,
			AutoFeedback:             true,
			AutoFeedbackConfidence:   0.8,
		},
		Recognizer: RecognizerConfig{
			Backend:       "grpc",
			GRPC:          "127.0.0.1:50051",
			LanguageCode:  "en-US",
			DialTimeoutMS: 3000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Navigation: NavigationConfig{
			BaseURL: "http://localhost:3000",
			Open:    mustParseCommand("navigation.open_cmd", open),
		},
		Speech:  SpeechConfig{Speak: mustParseCommand("speech.speak_cmd", speak)},
		Storage: StorageConfig{Backend: "sqlite", RedisPrefix: "nexa:"},
		Analytics: AnalyticsConfig{
			MaxCommands: 500,
			MaxErrors:   500,
			MaxSessions: 100,
		},
		Feedback: FeedbackConfig{
			Endpoint:        "http://127.0.0.1:8787",
			TimeoutMS:       10000,
			SyncIntervalMS:  60000,
			SyncConcurrency: 4,
		},
		Server: ServerConfig{
			Embed:     true,
			Listen:    "127.0.0.1:8787",
			Driver:    "sqlite",
			RateLimit: 10,
			RateBurst: 20,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "nexa",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
