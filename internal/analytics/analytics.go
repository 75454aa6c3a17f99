// Package analytics records voice command outcomes, errors, and sessions in a key-value store.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rbright/nexa/internal/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// StorageKey holds the commands, errors, and sessions document.
	StorageKey = "voice_analytics"
	// SessionKey holds the session currently in progress.
	SessionKey = "voice_session_data"
)

// Limits caps each persisted collection; the oldest entries are evicted first.
type Limits struct {
	Commands int
	Errors   int
	Sessions int
}

// DefaultLimits returns the stock retention caps.
func DefaultLimits() Limits {
	return Limits{Commands: 500, Errors: 500, Sessions: 100}
}

// RecordContext describes where a command or error happened.
type RecordContext struct {
	CurrentPath string `json:"currentPath,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
}

// CommandRecord is one processed utterance.
type CommandRecord struct {
	Command      string         `json:"command"`
	Action       string         `json:"action"`
	Confidence   float64        `json:"confidence"`
	Success      bool           `json:"success"`
	ResponseTime int64          `json:"responseTime"`
	Response     string         `json:"response,omitempty"`
	Error        string         `json:"error,omitempty"`
	SessionID    string         `json:"sessionId"`
	Timestamp    int64          `json:"timestamp"`
	Context      *RecordContext `json:"context,omitempty"`
}

// ErrorRecord is one recognition or execution failure.
type ErrorRecord struct {
	Type       string  `json:"type"`
	Error      string  `json:"error"`
	Command    string  `json:"command,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	SessionID  string  `json:"sessionId"`
	Timestamp  int64   `json:"timestamp"`
}

// SessionRecord summarizes one listening session.
type SessionRecord struct {
	SessionID         string  `json:"sessionId"`
	StartTime         int64   `json:"startTime"`
	EndTime           int64   `json:"endTime,omitempty"`
	CommandCount      int     `json:"commandCount"`
	FailureCount      int     `json:"failureCount"`
	SuccessRate       float64 `json:"successRate"`
	AverageConfidence float64 `json:"averageConfidence"`
	Duration          int64   `json:"duration"`
	Trigger           string  `json:"trigger,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

// Data is the persisted analytics document.
type Data struct {
	Commands []CommandRecord `json:"commands"`
	Errors   []ErrorRecord   `json:"errors"`
	Sessions []SessionRecord `json:"sessions"`
}

func emptyData() Data {
	return Data{Commands: []CommandRecord{}, Errors: []ErrorRecord{}, Sessions: []SessionRecord{}}
}

// ErrorCount is one row of Summary.MostCommonErrors.
type ErrorCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Summary aggregates stored records.
type Summary struct {
	TotalCommands       int            `json:"totalCommands"`
	SuccessfulCommands  int            `json:"successfulCommands"`
	FailedCommands      int            `json:"failedCommands"`
	SuccessRate         float64        `json:"successRate"`
	AverageConfidence   float64        `json:"averageConfidence"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	TotalSessions       int            `json:"totalSessions"`
	TotalErrors         int            `json:"totalErrors"`
	MostCommonErrors    []ErrorCount   `json:"mostCommonErrors"`
	CommandFrequency    map[string]int `json:"commandFrequency"`
}

// Tracker persists analytics through a Store. Writes are serialized per Tracker.
type Tracker struct {
	logger *slog.Logger
	store  storage.Store
	limits Limits
	now    func() time.Time

	mu sync.Mutex
}

// New constructs a tracker. Non-positive limits fall back to DefaultLimits.
func New(logger *slog.Logger, store storage.Store, limits Limits) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultLimits()
	if limits.Commands <= 0 {
		limits.Commands = def.Commands
	}
	if limits.Errors <= 0 {
		limits.Errors = def.Errors
	}
	if limits.Sessions <= 0 {
		limits.Sessions = def.Sessions
	}
	return &Tracker{logger: logger, store: store, limits: limits, now: time.Now}
}

// TrackCommand appends one command record. Missing timestamps are filled in.
func (t *Tracker) TrackCommand(ctx context.Context, record CommandRecord) error {
	if record.Timestamp == 0 {
		record.Timestamp = t.now().UnixMilli()
	}
	return t.update(ctx, func(d *Data) {
		d.Commands = append(d.Commands, record)
	})
}

// TrackError appends one error record.
func (t *Tracker) TrackError(ctx context.Context, record ErrorRecord) error {
	if record.Type == "" {
		record.Type = "unknown"
	}
	if record.Timestamp == 0 {
		record.Timestamp = t.now().UnixMilli()
	}
	return t.update(ctx, func(d *Data) {
		d.Errors = append(d.Errors, record)
	})
}

// TrackRecognitionFailure records a recognition_error entry.
func (t *Tracker) TrackRecognitionFailure(ctx context.Context, sessionID, message string, confidence float64) error {
	return t.TrackError(ctx, ErrorRecord{
		Type:       "recognition_error",
		Error:      message,
		Confidence: confidence,
		SessionID:  sessionID,
	})
}

// TrackSession appends one session record. Duration derives from start and end.
func (t *Tracker) TrackSession(ctx context.Context, record SessionRecord) error {
	if record.StartTime == 0 {
		record.StartTime = t.now().UnixMilli()
	}
	if record.EndTime > 0 && record.EndTime >= record.StartTime {
		record.Duration = record.EndTime - record.StartTime
	}
	return t.update(ctx, func(d *Data) {
		d.Sessions = append(d.Sessions, record)
	})
}

// Get returns the stored document. Missing or corrupt data yields empty collections.
func (t *Tracker) Get(ctx context.Context) Data {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

// Summary derives aggregates from the stored records only.
func (t *Tracker) Summary(ctx context.Context) Summary {
	return summarize(t.Get(ctx))
}

// Clear removes all stored analytics.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear analytics: %w", err)
	}
	if err := t.store.Remove(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear analytics session: %w", err)
	}
	return nil
}

// Import replaces the stored document, applying the retention caps.
func (t *Tracker) Import(ctx context.Context, content []byte) error {
	var data Data
	if err := json.Unmarshal(content, &data); err != nil {
		return fmt.Errorf("decode analytics import: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(ctx, data)
}

func (t *Tracker) update(ctx context.Context, mutate func(*Data)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.load(ctx)
	mutate(&data)
	return t.save(ctx, data)
}

func (t *Tracker) load(ctx context.Context) Data {
	raw, ok, err := t.store.Get(ctx, StorageKey)
	if err != nil {
		t.logger.Warn("read analytics failed", "error", err.Error())
		return emptyData()
	}
	if !ok || raw == "" {
		return emptyData()
	}

	var data Data
	if err := json.UnmarshalFromString(raw, &data); err != nil {
		t.logger.Warn("analytics data is corrupt; starting empty", "error", err.Error())
		return emptyData()
	}
	if data.Commands == nil {
		data.Commands = []CommandRecord{}
	}
	if data.Errors == nil {
		data.Errors = []ErrorRecord{}
	}
	if data.Sessions == nil {
		data.Sessions = []SessionRecord{}
	}
	return data
}

func (t *Tracker) save(ctx context.Context, data Data) error {
	data.Commands = keepLast(data.Commands, t.limits.Commands)
	data.Errors = keepLast(data.Errors, t.limits.Errors)
	data.Sessions = keepLast(data.Sessions, t.limits.Sessions)

	encoded, err := json.MarshalToString(data)
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}
	if err := t.store.Set(ctx, StorageKey, encoded); err != nil {
		return fmt.Errorf("write analytics: %w", err)
	}
	return nil
}

func keepLast[T any](items []T, limit int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) <= limit {
		return items
	}
	return append([]T(nil), items[len(items)-limit:]...)
}

func summarize(data Data) Summary {
	s := Summary{
		TotalCommands:    len(data.Commands),
		TotalSessions:    len(data.Sessions),
		TotalErrors:      len(data.Errors),
		MostCommonErrors: []ErrorCount{},
		CommandFrequency: make(map[string]int),
	}

	var confidence, responseTime float64
	for _, cmd := range data.Commands {
		if cmd.Success {
			s.SuccessfulCommands++
		} else {
			s.FailedCommands++
		}
		confidence += cmd.Confidence
		responseTime += float64(cmd.ResponseTime)

		name := cmd.Command
		if name == "" {
			name = "unknown"
		}
		s.CommandFrequency[name]++
	}
	if s.TotalCommands > 0 {
		n := float64(s.TotalCommands)
		s.SuccessRate = float64(s.SuccessfulCommands) / n
		s.AverageConfidence = confidence / n
		s.AverageResponseTime = responseTime / n
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range data.Errors {
		if _, seen := counts[e.Type]; !seen {
			order = append(order, e.Type)
		}
		counts[e.Type]++
	}
	for _, typ := range order {
		s.MostCommonErrors = append(s.MostCommonErrors, ErrorCount{Type: typ, Count: counts[typ]})
	}
	sort.SliceStable(s.MostCommonErrors, func(i, j int) bool {
		return s.MostCommonErrors[i].Count > s.MostCommonErrors[j].Count
	})
	return s
}
