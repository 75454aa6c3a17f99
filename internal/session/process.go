package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/rbright/nexa/internal/analytics"
	"github.com/rbright/nexa/internal/executor"
	"github.com/rbright/nexa/internal/feedback"
	"github.com/rbright/nexa/internal/fsm"
	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/ipc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const speakTimeout = 30 * time.Second

// job is one utterance on its way through interpret and execute.
type job struct {
	text       string
	confidence float64
	sessionID  string
	trigger    Trigger
	previous   string
	run        *run
	once       sync.Once
}

func (j *job) finish() {
	j.once.Do(func() {
		if j.run != nil {
			j.run.processing.Done()
		}
	})
}

// beginProcessing claims the single processing slot for text.
func (c *Controller) beginProcessing(event fsm.Event, text string, confidence float64) (*job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return nil, ErrClosed
	case !c.state.Enabled:
		return nil, ErrDisabled
	case c.state.Processing:
		return nil, ErrBusy
	}
	if err := c.transitionLocked(event); err != nil {
		return nil, fmt.Errorf("begin processing: %w", err)
	}

	j := &job{
		text:       text,
		confidence: confidence,
		sessionID:  c.state.SessionID,
		trigger:    c.state.Trigger,
		previous:   c.state.Response,
	}
	if j.sessionID == "" {
		j.sessionID = uuid.NewString()
	}
	if j.trigger == "" {
		j.trigger = TriggerManual
	}
	if c.run != nil && c.state.Listening {
		j.run = c.run
		j.run.processing.Add(1)
	}

	c.state.Processing = true
	c.state.Command = text
	c.state.LastConfidence = confidence
	c.state.Error = ""
	c.publishLocked()
	return j, nil
}

// process interprets and executes one utterance, records it, and settles the
// phase back to listening or idle.
func (c *Controller) process(ctx context.Context, j *job) executor.Outcome {
	c.deps.Indicator.ShowProcessing(ctx)
	started := c.now()

	cmd := c.deps.Interpreter.Interpret(j.text)
	outcome := c.deps.Executor.Execute(ctx, cmd, c.effects(j))
	elapsed := c.now().Sub(started).Milliseconds()

	record := analytics.CommandRecord{
		Command:      strings.ToLower(strings.TrimSpace(j.text)),
		Action:       string(outcome.Action),
		Confidence:   j.confidence,
		Success:      outcome.Success,
		ResponseTime: elapsed,
		Response:     outcome.Message,
		SessionID:    j.sessionID,
		Context:      &analytics.RecordContext{Trigger: string(j.trigger)},
	}
	if !outcome.Success {
		record.Error = outcome.Message
	}
	if err := c.deps.Tracker.TrackCommand(ctx, record); err != nil {
		c.logger.Warn("track command failed", "error", err.Error())
	}
	c.autoFeedback(j, outcome, elapsed)

	c.mu.Lock()
	c.state.Response = outcome.Message
	c.state.Processing = false
	if c.state.Phase == fsm.StateProcessing {
		event := fsm.EventFinished
		if c.state.Listening && c.state.Enabled {
			event = fsm.EventExecuted
		}
		_ = c.transitionLocked(event)
	}
	c.publishLocked()
	c.mu.Unlock()

	if outcome.Success {
		c.deps.Indicator.CueComplete(context.Background())
	} else {
		c.deps.Indicator.CueCancel(context.Background())
	}
	if c.opts.SpeakResponses && outcome.Message != "" {
		c.speak(outcome.Message)
	}

	c.logger.Info("voice command processed",
		"session_id", j.sessionID,
		"action", string(outcome.Action),
		"success", outcome.Success,
		"confidence", j.confidence,
		"response_ms", elapsed,
	)
	return outcome
}

// autoFeedback rates confident successful commands without asking the user.
func (c *Controller) autoFeedback(j *job, outcome executor.Outcome, elapsed int64) {
	if !c.opts.AutoFeedback || c.deps.Feedback == nil {
		return
	}
	if !outcome.Success || outcome.Action == grammar.ActionUnknown || j.confidence <= c.opts.AutoFeedbackConfidence {
		return
	}
	item := feedback.Item{
		Command:    j.text,
		Rating:     5,
		Confidence: j.confidence,
		SessionID:  j.sessionID,
		Context: map[string]any{
			"autoGenerated": true,
			"action":        string(outcome.Action),
			"responseTime":  elapsed,
		},
	}
	c.goBackground(func() {
		ctx, cancel := context.WithTimeout(c.bgCtx, 15*time.Second)
		defer cancel()
		if result := c.deps.Feedback.Submit(ctx, item); !result.Success && !result.Offline {
			c.logger.Warn("auto feedback rejected", "error", result.Error)
		}
	})
}

// speak replaces any utterance in progress with text.
func (c *Controller) speak(text string) {
	c.deps.Synthesizer.Cancel()
	c.goBackground(func() {
		ctx, cancel := context.WithTimeout(c.bgCtx, speakTimeout)
		defer cancel()
		if err := c.deps.Synthesizer.Speak(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("speech synthesis failed", "error", err.Error())
		}
	})
}

// effects layers the controller's own system operations over the wired ones.
func (c *Controller) effects(j *job) executor.Effects {
	fx := c.deps.Effects
	base := fx.System
	fx.System = executor.SystemFunc(func(ctx context.Context, op string) error {
		switch op {
		case "stop-listening":
			c.mu.RLock()
			r := c.run
			c.mu.RUnlock()
			if r != nil {
				r.requestStop(reasonCommand)
			}
			return nil
		case "repeat":
			if j.previous == "" {
				return errors.New("nothing to repeat")
			}
			c.speak(j.previous)
			return nil
		}
		if base == nil {
			return fmt.Errorf("system operation %q is not available", op)
		}
		return base.Run(ctx, op)
	})
	return fx
}

// Submit processes typed text as if it had been heard with confidence. It
// runs synchronously and does not require a listening session.
func (c *Controller) Submit(ctx context.Context, text string, confidence float64) (executor.Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return executor.Outcome{}, errors.New("command text is empty")
	}
	j, err := c.beginProcessing(fsm.EventSubmit, text, confidence)
	if err != nil {
		return executor.Outcome{}, err
	}
	defer j.finish()
	return c.process(ctx, j), nil
}

// Handle answers one control-socket request.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.statusResponse("")
	case ipc.CommandStart:
		if err := c.StartListening(ctx, TriggerManual); err != nil {
			return c.errorResponse(err)
		}
		return c.statusResponse("listening")
	case ipc.CommandStop:
		if err := c.StopListening(ctx); err != nil {
			return c.errorResponse(err)
		}
		return c.statusResponse("stopped")
	case ipc.CommandToggle:
		enabled, err := c.ToggleEnabled(ctx)
		switch {
		case err != nil:
			return c.errorResponse(err)
		case enabled:
			return c.statusResponse("enabled")
		default:
			return c.statusResponse("disabled")
		}
	case ipc.CommandEnable, ipc.CommandDisable:
		if err := c.SetEnabled(ctx, req.Command == ipc.CommandEnable); err != nil {
			return c.errorResponse(err)
		}
		return c.statusResponse(req.Command + "d")
	case ipc.CommandSend:
		confidence := req.Confidence
		if confidence <= 0 {
			confidence = 1
		}
		outcome, err := c.Submit(ctx, req.Text, confidence)
		if err != nil {
			return c.errorResponse(err)
		}
		data, err := json.Marshal(outcome)
		if err != nil {
			return c.errorResponse(err)
		}
		return ipc.Response{
			OK:      outcome.Success,
			State:   string(c.Snapshot().Phase),
			Message: outcome.Message,
			Data:    data,
		}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) statusResponse(message string) ipc.Response {
	snapshot := c.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return c.errorResponse(err)
	}
	return ipc.Response{OK: true, State: string(snapshot.Phase), Message: message, Data: data}
}

func (c *Controller) errorResponse(err error) ipc.Response {
	return ipc.Response{OK: false, State: string(c.Snapshot().Phase), Error: err.Error()}
}
