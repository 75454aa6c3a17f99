package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// Filter narrows Detailed results. Zero times are unbounded.
type Filter struct {
	Since        time.Time
	Until        time.Time
	Limit        int
	SkipCommands bool
	SkipErrors   bool
	SkipSessions bool
}

// Detailed is a filtered view over the stored records.
type Detailed struct {
	Summary  Summary         `json:"summary"`
	Commands []CommandRecord `json:"commands,omitempty"`
	Errors   []ErrorRecord   `json:"failures,omitempty"`
	Sessions []SessionRecord `json:"sessions,omitempty"`
}

// Detailed returns the summary plus the newest records inside the filter window.
func (t *Tracker) Detailed(ctx context.Context, f Filter) Detailed {
	data := t.Get(ctx)
	if f.Limit <= 0 {
		f.Limit = 100
	}

	out := Detailed{Summary: summarize(data)}
	if !f.SkipCommands {
		commands := make([]CommandRecord, 0, len(data.Commands))
		for _, c := range data.Commands {
			if f.contains(c.Timestamp) {
				commands = append(commands, c)
			}
		}
		out.Commands = keepLast(commands, f.Limit)
	}
	if !f.SkipErrors {
		errs := make([]ErrorRecord, 0, len(data.Errors))
		for _, e := range data.Errors {
			if f.contains(e.Timestamp) {
				errs = append(errs, e)
			}
		}
		out.Errors = keepLast(errs, f.Limit)
	}
	if !f.SkipSessions {
		out.Sessions = keepLast(data.Sessions, f.Limit)
	}
	return out
}

func (f Filter) contains(timestampMillis int64) bool {
	at := time.UnixMilli(timestampMillis)
	if !f.Since.IsZero() && at.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && at.After(f.Until) {
		return false
	}
	return true
}

// Period is a named look-back window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ForPeriod returns Detailed results for the window ending now.
func (t *Tracker) ForPeriod(ctx context.Context, period Period) Detailed {
	now := t.now()
	f := Filter{Until: now}
	switch period {
	case PeriodDay:
		f.Since = now.Add(-24 * time.Hour)
	case PeriodWeek:
		f.Since = now.Add(-7 * 24 * time.Hour)
	case PeriodMonth:
		f.Since = now.Add(-30 * 24 * time.Hour)
	}
	return t.Detailed(ctx, f)
}

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Export encodes the stored document as JSON or sectioned CSV.
func (t *Tracker) Export(ctx context.Context, format Format) ([]byte, error) {
	data := t.Get(ctx)
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(data, "", "  ")
	case FormatCSV:
		return encodeCSV(data)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func encodeCSV(data Data) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(data.Commands) > 0 {
		_ = w.Write([]string{"COMMANDS"})
		_ = w.Write([]string{"Timestamp", "Session ID", "Command", "Action", "Success", "Confidence", "Response Time"})
		for _, c := range data.Commands {
			_ = w.Write([]string{
				strconv.FormatInt(c.Timestamp, 10),
				c.SessionID,
				c.Command,
				c.Action,
				strconv.FormatBool(c.Success),
				strconv.FormatFloat(c.Confidence, 'f', -1, 64),
				strconv.FormatInt(c.ResponseTime, 10),
			})
		}
		_ = w.Write([]string{})
	}

	if len(data.Errors) > 0 {
		_ = w.Write([]string{"ERRORS"})
		_ = w.Write([]string{"Timestamp", "Session ID", "Type", "Error", "Command"})
		for _, e := range data.Errors {
			_ = w.Write([]string{
				strconv.FormatInt(e.Timestamp, 10),
				e.SessionID,
				e.Type,
				e.Error,
				e.Command,
			})
		}
		_ = w.Write([]string{})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode analytics csv: %w", err)
	}
	return buf.Bytes(), nil
}
