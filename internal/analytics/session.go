package analytics

import (
	"context"
	"fmt"
)

// SessionStart describes a listening session that just began.
type SessionStart struct {
	SessionID   string `json:"sessionId"`
	Trigger     string `json:"trigger,omitempty"`
	CurrentPath string `json:"currentPath,omitempty"`
	StartTime   int64  `json:"startTime"`
}

// TrackSessionStart persists the in-progress session under SessionKey.
func (t *Tracker) TrackSessionStart(ctx context.Context, start SessionStart) error {
	if start.SessionID == "" {
		return fmt.Errorf("session start requires a session id")
	}
	if start.StartTime == 0 {
		start.StartTime = t.now().UnixMilli()
	}
	encoded, err := json.MarshalToString(start)
	if err != nil {
		return fmt.Errorf("encode session start: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Set(ctx, SessionKey, encoded); err != nil {
		return fmt.Errorf("write session start: %w", err)
	}
	return nil
}

// TrackSessionEnd closes the in-progress session and appends its summary.
// It is a no-op when no session is in progress.
func (t *Tracker) TrackSessionEnd(ctx context.Context, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok, err := t.store.Get(ctx, SessionKey)
	if err != nil {
		return fmt.Errorf("read session start: %w", err)
	}
	if !ok {
		return nil
	}

	var start SessionStart
	if err := json.UnmarshalFromString(raw, &start); err != nil || start.SessionID == "" {
		t.logger.Warn("in-progress session data is corrupt; discarding")
		return t.store.Remove(ctx, SessionKey)
	}

	data := t.load(ctx)
	end := t.now().UnixMilli()
	record := SessionRecord{
		SessionID: start.SessionID,
		StartTime: start.StartTime,
		EndTime:   end,
		Duration:  max(end-start.StartTime, 0),
		Trigger:   start.Trigger,
		Reason:    reason,
	}

	var successes int
	var confidence float64
	for _, cmd := range data.Commands {
		if cmd.SessionID != start.SessionID {
			continue
		}
		record.CommandCount++
		confidence += cmd.Confidence
		if cmd.Success {
			successes++
		}
	}
	for _, e := range data.Errors {
		if e.SessionID == start.SessionID {
			record.FailureCount++
		}
	}
	if record.CommandCount > 0 {
		record.SuccessRate = float64(successes) / float64(record.CommandCount)
		record.AverageConfidence = confidence / float64(record.CommandCount)
	}

	data.Sessions = append(data.Sessions, record)
	if err := t.save(ctx, data); err != nil {
		return err
	}
	if err := t.store.Remove(ctx, SessionKey); err != nil {
		return fmt.Errorf("clear session start: %w", err)
	}
	t.logger.Info("voice session ended",
		"session_id", record.SessionID,
		"duration_ms", record.Duration,
		"commands", record.CommandCount,
		"failures", record.FailureCount,
	)
	return nil
}

// CurrentSession returns the in-progress session, if any.
func (t *Tracker) CurrentSession(ctx context.Context) (SessionStart, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok, err := t.store.Get(ctx, SessionKey)
	if err != nil || !ok {
		return SessionStart{}, false
	}
	var start SessionStart
	if err := json.UnmarshalFromString(raw, &start); err != nil || start.SessionID == "" {
		return SessionStart{}, false
	}
	return start, true
}
