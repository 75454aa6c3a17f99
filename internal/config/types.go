// Package config resolves, parses, validates, and defaults nexa configuration.
package config

// Config is the fully materialized runtime configuration used by nexa.
type Config struct {
	WakeWord    WakeWordConfig
	Interpreter InterpreterConfig
	Executor    ExecutorConfig
	Session     SessionConfig
	Recognizer  RecognizerConfig
	Audio       AudioConfig
	Navigation  NavigationConfig
	System      SystemConfig
	Speech      SpeechConfig
	Storage     StorageConfig
	Analytics   AnalyticsConfig
	Feedback    FeedbackConfig
	Server      ServerConfig
	Indicator   IndicatorConfig
	Log         LogConfig
}

// WakeWordConfig controls passive trigger-phrase listening.
type WakeWordConfig struct {
	Enable            bool
	Phrase            string
	Sensitivity       float64
	WordSimilarity    float64
	MatchRatio        float64
	CooldownMS        int
	RestartDelayMS    int
	EndRestartDelayMS int
}

// InterpreterConfig holds the grammar override and the matching confidence bands.
type InterpreterConfig struct {
	GrammarFile      string
	ExactConfidence  float64
	ContainsFloor    float64
	ContainsSpan     float64
	SearchConfidence float64
	WordSimilarity   float64
	MatchRatio       float64
	FuzzyFloor       float64
	FuzzySpan        float64
}

// ExecutorConfig controls the confidence gate and effect deadline.
type ExecutorConfig struct {
	MinConfidence float64
	TimeoutMS     int
}

// SessionConfig controls the voice session controller.
type SessionConfig struct {
	EnableOnStart            bool
	ListeningTimeoutMS       int
	MinRecognitionConfidence float64
	SpeakResponses           bool
	AutoFeedback             bool
	AutoFeedbackConfidence   float64
}

// RecognizerConfig selects the speech recognition engine.
type RecognizerConfig struct {
	Backend       string
	GRPC          string
	LanguageCode  string
	DialTimeoutMS int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// NavigationConfig controls how application routes are opened.
type NavigationConfig struct {
	BaseURL string
	// Open receives the absolute URL in place of a "{url}" argument, or as
	// the last argument when no placeholder is present.
	Open CommandConfig
}

// SystemConfig maps system operations to commands.
type SystemConfig struct {
	Logout CommandConfig
}

// SpeechConfig controls spoken responses.
type SpeechConfig struct {
	// Speak receives the text on stdin.
	Speak CommandConfig
}

// StorageConfig selects the key-value store for analytics and the feedback queue.
type StorageConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// AnalyticsConfig caps the persisted analytics collections.
type AnalyticsConfig struct {
	MaxCommands int
	MaxErrors   int
	MaxSessions int
}

// FeedbackConfig controls the remote feedback client and its retry loop.
type FeedbackConfig struct {
	Endpoint        string
	TimeoutMS       int
	SyncIntervalMS  int
	SyncConcurrency int
}

// ServerConfig controls the feedback HTTP service.
type ServerConfig struct {
	// Embed serves the API and the state feed from the daemon process.
	Embed          bool
	Listen         string
	Driver         string
	DSN            string
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// IndicatorConfig controls desktop notifications and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundCompleteFile string
	SoundCancelFile   string
	TextListening     string
	TextProcessing    string
	TextError         string
	ErrorTimeoutMS    int
}

// LogConfig controls the JSON log file and its rotation.
type LogConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
