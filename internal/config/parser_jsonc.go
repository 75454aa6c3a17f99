package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	WakeWord    *jsoncWakeWord    `json:"wake_word"`
	Interpreter *jsoncInterpreter `json:"interpreter"`
	Executor    *jsoncExecutor    `json:"executor"`
	Session     *jsoncSession     `json:"session"`
	Recognizer  *jsoncRecognizer  `json:"recognizer"`
	Audio       *jsoncAudio       `json:"audio"`
	Navigation  *jsoncNavigation  `json:"navigation"`
	System      *jsoncSystem      `json:"system"`
	Speech      *jsoncSpeech      `json:"speech"`
	Storage     *jsoncStorage     `json:"storage"`
	Analytics   *jsoncAnalytics   `json:"analytics"`
	Feedback    *jsoncFeedback    `json:"feedback"`
	Server      *jsoncServer      `json:"server"`
	Indicator   *jsoncIndicator   `json:"indicator"`
	Log         *jsoncLog         `json:"log"`
}

type jsoncWakeWord struct {
	Enable            *bool    `json:"enable"`
	Phrase            *string  `json:"phrase"`
	Sensitivity       *float64 `json:"sensitivity"`
	WordSimilarity    *float64 `json:"word_similarity"`
	MatchRatio        *float64 `json:"match_ratio"`
	CooldownMS        *int     `json:"cooldown_ms"`
	RestartDelayMS    *int     `json:"restart_delay_ms"`
	EndRestartDelayMS *int     `json:"end_restart_delay_ms"`
}

type jsoncInterpreter struct {
	GrammarFile      *string  `json:"grammar_file"`
	ExactConfidence  *float64 `json:"exact_confidence"`
	ContainsFloor    *float64 `json:"contains_floor"`
	ContainsSpan     *float64 `json:"contains_span"`
	SearchConfidence *float64 `json:"search_confidence"`
	WordSimilarity   *float64 `json:"word_similarity"`
	MatchRatio       *float64 `json:"match_ratio"`
	FuzzyFloor       *float64 `json:"fuzzy_floor"`
	FuzzySpan        *float64 `json:"fuzzy_span"`
}

type jsoncExecutor struct {
	MinConfidence *float64 `json:"min_confidence"`
	TimeoutMS     *int     `json:"timeout_ms"`
}

type jsoncSession struct {
	EnableOnStart            *bool    `json:"enable_on_start"`
	ListeningTimeoutMS       *int     `json:"listening_timeout_ms"`
	MinRecognitionConfidence *float64 `json:"min_recognition_confidence"`
	SpeakResponses           *bool    `json:"speak_responses"`
	AutoFeedback             *bool    `json:"auto_feedback"`
	AutoFeedbackConfidence   *float64 `json:"auto_feedback_confidence"`
}

type jsoncRecognizer struct {
	Backend       *string `json:"backend"`
	GRPC          *string `json:"grpc"`
	LanguageCode  *string `json:"language_code"`
	DialTimeoutMS *int    `json:"dial_timeout_ms"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncNavigation struct {
	BaseURL *string `json:"base_url"`
	OpenCmd *string `json:"open_cmd"`
}

type jsoncSystem struct {
	LogoutCmd *string `json:"logout_cmd"`
}

type jsoncSpeech struct {
	SpeakCmd *string `json:"speak_cmd"`
}

type jsoncStorage struct {
	Backend       *string `json:"backend"`
	Path          *string `json:"path"`
	RedisAddr     *string `json:"redis_addr"`
	RedisPassword *string `json:"redis_password"`
	RedisDB       *int    `json:"redis_db"`
	RedisPrefix   *string `json:"redis_prefix"`
}

type jsoncAnalytics struct {
	MaxCommands *int `json:"max_commands"`
	MaxErrors   *int `json:"max_errors"`
	MaxSessions *int `json:"max_sessions"`
}

type jsoncFeedback struct {
	Endpoint        *string `json:"endpoint"`
	TimeoutMS       *int    `json:"timeout_ms"`
	SyncIntervalMS  *int    `json:"sync_interval_ms"`
	SyncConcurrency *int    `json:"sync_concurrency"`
}

type jsoncServer struct {
	Embed          *bool            `json:"embed"`
	Listen         *string          `json:"listen"`
	Driver         *string          `json:"driver"`
	DSN            *string          `json:"dsn"`
	RateLimit      *float64         `json:"rate_limit"`
	RateBurst      *int             `json:"rate_burst"`
	AllowedOrigins *jsoncStringList `json:"allowed_origins"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file"`
	TextListening     *string `json:"text_listening"`
	TextProcessing    *string `json:"text_processing"`
	TextError         *string `json:"text_error"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms"`
}

type jsoncLog struct {
	Level      *string `json:"level"`
	Path       *string `json:"path"`
	MaxSizeMB  *int    `json:"max_size_mb"`
	MaxBackups *int    `json:"max_backups"`
	MaxAgeDays *int    `json:"max_age_days"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setCommand(dst *CommandConfig, src *string, key string) error {
	if src == nil {
		return nil
	}
	cmd, err := parseCommand(key, *src)
	if err != nil {
		return err
	}
	*dst = cmd
	return nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if w := payload.WakeWord; w != nil {
		setValue(&cfg.WakeWord.Enable, w.Enable)
		setTrimmed(&cfg.WakeWord.Phrase, w.Phrase)
		setValue(&cfg.WakeWord.Sensitivity, w.Sensitivity)
		setValue(&cfg.WakeWord.WordSimilarity, w.WordSimilarity)
		setValue(&cfg.WakeWord.MatchRatio, w.MatchRatio)
		setValue(&cfg.WakeWord.CooldownMS, w.CooldownMS)
		setValue(&cfg.WakeWord.RestartDelayMS, w.RestartDelayMS)
		setValue(&cfg.WakeWord.EndRestartDelayMS, w.EndRestartDelayMS)
	}

	if in := payload.Interpreter; in != nil {
		setTrimmed(&cfg.Interpreter.GrammarFile, in.GrammarFile)
		setValue(&cfg.Interpreter.ExactConfidence, in.ExactConfidence)
		setValue(&cfg.Interpreter.ContainsFloor, in.ContainsFloor)
		setValue(&cfg.Interpreter.ContainsSpan, in.ContainsSpan)
		setValue(&cfg.Interpreter.SearchConfidence, in.SearchConfidence)
		setValue(&cfg.Interpreter.WordSimilarity, in.WordSimilarity)
		setValue(&cfg.Interpreter.MatchRatio, in.MatchRatio)
		setValue(&cfg.Interpreter.FuzzyFloor, in.FuzzyFloor)
		setValue(&cfg.Interpreter.FuzzySpan, in.FuzzySpan)
	}

	if ex := payload.Executor; ex != nil {
		setValue(&cfg.Executor.MinConfidence, ex.MinConfidence)
		setValue(&cfg.Executor.TimeoutMS, ex.TimeoutMS)
	}

	if s := payload.Session; s != nil {
		setValue(&cfg.Session.EnableOnStart, s.EnableOnStart)
		setValue(&cfg.Session.ListeningTimeoutMS, s.ListeningTimeoutMS)
		setValue(&cfg.Session.MinRecognitionConfidence, s.MinRecognitionConfidence)
		setValue(&cfg.Session.SpeakResponses, s.SpeakResponses)
		setValue(&cfg.Session.AutoFeedback, s.AutoFeedback)
		setValue(&cfg.Session.AutoFeedbackConfidence, s.AutoFeedbackConfidence)
	}

	if r := payload.Recognizer; r != nil {
		if r.Backend != nil {
			cfg.Recognizer.Backend = strings.ToLower(strings.TrimSpace(*r.Backend))
		}
		setTrimmed(&cfg.Recognizer.GRPC, r.GRPC)
		setTrimmed(&cfg.Recognizer.LanguageCode, r.LanguageCode)
		setValue(&cfg.Recognizer.DialTimeoutMS, r.DialTimeoutMS)
	}

	if a := payload.Audio; a != nil {
		setValue(&cfg.Audio.Input, a.Input)
		setValue(&cfg.Audio.Fallback, a.Fallback)
	}

	if n := payload.Navigation; n != nil {
		setTrimmed(&cfg.Navigation.BaseURL, n.BaseURL)
		if err := setCommand(&cfg.Navigation.Open, n.OpenCmd, "navigation.open_cmd"); err != nil {
			return nil, err
		}
	}

	if s := payload.System; s != nil {
		if err := setCommand(&cfg.System.Logout, s.LogoutCmd, "system.logout_cmd"); err != nil {
			return nil, err
		}
	}

	if s := payload.Speech; s != nil {
		if err := setCommand(&cfg.Speech.Speak, s.SpeakCmd, "speech.speak_cmd"); err != nil {
			return nil, err
		}
	}

	if s := payload.Storage; s != nil {
		if s.Backend != nil {
			cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(*s.Backend))
		}
		setTrimmed(&cfg.Storage.Path, s.Path)
		setTrimmed(&cfg.Storage.RedisAddr, s.RedisAddr)
		setValue(&cfg.Storage.RedisPassword, s.RedisPassword)
		setValue(&cfg.Storage.RedisDB, s.RedisDB)
		setValue(&cfg.Storage.RedisPrefix, s.RedisPrefix)
	}

	if a := payload.Analytics; a != nil {
		setValue(&cfg.Analytics.MaxCommands, a.MaxCommands)
		setValue(&cfg.Analytics.MaxErrors, a.MaxErrors)
		setValue(&cfg.Analytics.MaxSessions, a.MaxSessions)
	}

	if f := payload.Feedback; f != nil {
		setTrimmed(&cfg.Feedback.Endpoint, f.Endpoint)
		setValue(&cfg.Feedback.TimeoutMS, f.TimeoutMS)
		setValue(&cfg.Feedback.SyncIntervalMS, f.SyncIntervalMS)
		setValue(&cfg.Feedback.SyncConcurrency, f.SyncConcurrency)
	}

	if s := payload.Server; s != nil {
		setValue(&cfg.Server.Embed, s.Embed)
		setTrimmed(&cfg.Server.Listen, s.Listen)
		if s.Driver != nil {
			cfg.Server.Driver = strings.ToLower(strings.TrimSpace(*s.Driver))
		}
		setTrimmed(&cfg.Server.DSN, s.DSN)
		setValue(&cfg.Server.RateLimit, s.RateLimit)
		setValue(&cfg.Server.RateBurst, s.RateBurst)
		if s.AllowedOrigins != nil {
			cfg.Server.AllowedOrigins = append([]string(nil), (*s.AllowedOrigins)...)
		}
	}

	if i := payload.Indicator; i != nil {
		setValue(&cfg.Indicator.Enable, i.Enable)
		setTrimmed(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setValue(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setTrimmed(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setTrimmed(&cfg.Indicator.SoundCompleteFile, i.SoundCompleteFile)
		setTrimmed(&cfg.Indicator.SoundCancelFile, i.SoundCancelFile)
		setValue(&cfg.Indicator.TextListening, i.TextListening)
		setValue(&cfg.Indicator.TextProcessing, i.TextProcessing)
		setValue(&cfg.Indicator.TextError, i.TextError)
		setValue(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if l := payload.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		setTrimmed(&cfg.Log.Path, l.Path)
		setValue(&cfg.Log.MaxSizeMB, l.MaxSizeMB)
		setValue(&cfg.Log.MaxBackups, l.MaxBackups)
		setValue(&cfg.Log.MaxAgeDays, l.MaxAgeDays)
	}

	if payload.Recognizer != nil && payload.Recognizer.Backend != nil && cfg.Recognizer.Backend == "stdin" {
		warnings = append(warnings, Warning{Message: "recognizer.backend=stdin reads typed lines instead of audio"})
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
