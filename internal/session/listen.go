package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/nexa/internal/analytics"
	"github.com/rbright/nexa/internal/fsm"
	"github.com/rbright/nexa/internal/speech"
)

const (
	reasonManual  = "manual"
	reasonTimeout = "timeout"
	reasonEnded   = "ended"
	reasonError   = "error"
	reasonCommand = "command"
	reasonUnmount = "unmount"
)

const permissionDeniedMessage = "Microphone access denied. Please enable microphone permissions."

// run is one listening session: the engine lease, the microphone stream and
// the goroutine draining recognition events.
type run struct {
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	trigger   Trigger
	stream    speech.MediaStream
	release   func()
	events    <-chan speech.Event
	done      chan struct{}

	processing sync.WaitGroup

	mu     sync.Mutex
	reason string
}

func (r *run) requestStop(reason string) {
	r.mu.Lock()
	if r.reason == "" {
		r.reason = reason
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) stopReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reason == "" {
		return reasonManual
	}
	return r.reason
}

func (r *run) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartListening opens a listening session. It clears the previous error,
// command and response before requesting the microphone, so observers never
// see old and new session state mixed. Calling it while already listening is
// a no-op.
func (c *Controller) StartListening(ctx context.Context, trigger Trigger) error {
	if trigger == "" {
		trigger = TriggerManual
	}

	attempt, err := c.beginStart(ctx, trigger)
	if err != nil || attempt == 0 {
		return err
	}

	stream, err := c.deps.Media.Acquire(ctx)
	if err != nil {
		return c.permissionFailed(ctx, attempt, err)
	}

	release, err := c.deps.Arbiter.Acquire(speech.OwnerSession)
	if err != nil {
		stream.Stop()
		return c.startFailed(attempt, "Voice recognition is busy", fmt.Errorf("acquire recognition engine: %w", err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := c.deps.Recognizer.Start(runCtx)
	if err != nil {
		cancel()
		release()
		stream.Stop()
		return c.startFailed(attempt, "Failed to start voice recognition", fmt.Errorf("start recognizer: %w", err))
	}

	r := &run{
		ctx:       runCtx,
		cancel:    cancel,
		sessionID: uuid.NewString(),
		trigger:   trigger,
		stream:    stream,
		release:   release,
		events:    events,
		done:      make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed || c.attempt != attempt || c.state.Phase != fsm.StatePermission {
		c.mu.Unlock()
		c.deps.Recognizer.Stop()
		cancel()
		release()
		stream.Stop()
		c.logger.Debug("listening start superseded")
		return nil
	}
	c.run = r
	c.state.HasPermission = true
	c.state.Listening = true
	c.state.SessionID = r.sessionID
	_ = c.transitionLocked(fsm.EventGranted)
	c.publishLocked()
	c.mu.Unlock()

	if err := c.deps.Tracker.TrackSessionStart(ctx, analytics.SessionStart{
		SessionID: r.sessionID,
		Trigger:   string(trigger),
	}); err != nil {
		c.logger.Warn("track session start failed", "error", err.Error())
	}
	c.deps.Indicator.CueStart(context.Background())
	c.deps.Indicator.ShowListening(ctx)
	c.logger.Info("voice session started", "session_id", r.sessionID, "trigger", string(trigger))

	if trigger == TriggerWakeWord {
		c.speak("Yes?")
	}
	go c.listen(r)
	return nil
}

// beginStart moves the phase into permission and resets per-session fields.
// A zero attempt with a nil error means a session is already listening.
func (c *Controller) beginStart(ctx context.Context, trigger Trigger) (int, error) {
	for {
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			return 0, ErrClosed
		case !c.state.Enabled:
			c.mu.Unlock()
			return 0, ErrDisabled
		}

		prev := c.run
		if prev == nil {
			break
		}
		listening := c.state.Listening
		c.mu.Unlock()
		if listening {
			return 0, nil
		}
		// A previous session is still tearing down.
		if err := prev.wait(ctx); err != nil {
			return 0, err
		}
	}
	defer c.mu.Unlock()

	if c.state.Processing {
		return 0, ErrBusy
	}
	if err := c.transitionLocked(fsm.EventStart); err != nil {
		return 0, fmt.Errorf("start listening: %w", err)
	}
	c.attempt++
	c.state.Error = ""
	c.state.Command = ""
	c.state.Response = ""
	c.state.LastConfidence = 0
	c.state.SessionID = ""
	c.state.Trigger = trigger
	c.publishLocked()
	return c.attempt, nil
}

func (c *Controller) permissionFailed(ctx context.Context, attempt int, err error) error {
	message := err.Error()
	if errors.Is(err, speech.ErrPermissionDenied) {
		message = permissionDeniedMessage
	}

	c.mu.Lock()
	if c.attempt == attempt && c.state.Phase == fsm.StatePermission {
		if errors.Is(err, speech.ErrPermissionDenied) {
			c.state.HasPermission = false
		}
		c.state.Error = message
		_ = c.transitionLocked(fsm.EventDenied)
		c.publishLocked()
	}
	c.mu.Unlock()

	if trackErr := c.deps.Tracker.TrackRecognitionFailure(ctx, "", message, 0); trackErr != nil {
		c.logger.Warn("track permission failure failed", "error", trackErr.Error())
	}
	c.deps.Indicator.ShowError(context.Background(), message)
	c.logger.Warn("microphone unavailable", "error", err.Error())
	return fmt.Errorf("acquire microphone: %w", err)
}

func (c *Controller) startFailed(attempt int, message string, err error) error {
	c.mu.Lock()
	if c.attempt == attempt && c.state.Phase == fsm.StatePermission {
		c.failLocked(message)
		c.publishLocked()
	}
	c.mu.Unlock()

	c.deps.Indicator.ShowError(context.Background(), message)
	c.logger.Error("voice session start failed", "error", err.Error())
	return err
}

// StopListening stops the engine immediately and waits for the session to
// tear down. An in-flight command completes but does not resume listening.
func (c *Controller) StopListening(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	if r == nil {
		if c.state.Phase == fsm.StatePermission {
			_ = c.transitionLocked(fsm.EventStop)
			c.publishLocked()
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	r.requestStop(reasonManual)
	return r.wait(ctx)
}

func (c *Controller) listen(r *run) {
	timer := time.NewTimer(c.opts.ListeningTimeout)
	defer timer.Stop()

	reason := ""
	failed := false
loop:
	for {
		select {
		case <-r.ctx.Done():
			reason = r.stopReason()
			break loop
		case <-timer.C:
			c.logger.Info("listening timed out", "session_id", r.sessionID)
			reason = reasonTimeout
			break loop
		case ev, ok := <-r.events:
			if !ok {
				reason = reasonEnded
				break loop
			}
			switch ev.Kind {
			case speech.TranscriptReceived:
				if c.accept(r, ev) {
					timer.Reset(c.opts.ListeningTimeout)
				}
			case speech.RecognitionError:
				if ev.Code == speech.CodeAborted {
					continue
				}
				c.recognitionFailed(r, ev)
				reason = reasonError
				failed = true
				break loop
			case speech.RecognitionEnded:
				reason = reasonEnded
				break loop
			}
		}
	}

	c.teardown(r, reason, failed)
}

// accept routes one transcript into processing. Interim, empty, and
// low-confidence results are ignored; results arriving while a command is
// processing are dropped.
func (c *Controller) accept(r *run, ev speech.Event) bool {
	text := strings.TrimSpace(ev.Transcript)
	if !ev.Final || text == "" {
		return false
	}
	if ev.Confidence < c.opts.MinRecognitionConfidence {
		c.logger.Info("recognition confidence too low", "session_id", r.sessionID, "confidence", ev.Confidence)
		if err := c.deps.Tracker.TrackRecognitionFailure(r.ctx, r.sessionID, "low recognition confidence", ev.Confidence); err != nil {
			c.logger.Warn("track recognition failure failed", "error", err.Error())
		}
		return false
	}

	job, err := c.beginProcessing(fsm.EventHeard, text, ev.Confidence)
	if err != nil {
		c.logger.Info("dropping recognition result", "session_id", r.sessionID, "transcript", text, "reason", err.Error())
		return false
	}
	go func() {
		defer job.finish()
		c.process(context.WithoutCancel(r.ctx), job)
	}()
	return true
}

func (c *Controller) recognitionFailed(r *run, ev speech.Event) {
	message := ev.Code
	if ev.IsPermissionError() {
		message = permissionDeniedMessage
	}
	if message == "" && ev.Err != nil {
		message = ev.Err.Error()
	}
	if message == "" {
		message = "recognition failed"
	}

	c.mu.Lock()
	if ev.IsPermissionError() {
		c.state.HasPermission = false
	}
	c.failLocked(message)
	c.publishLocked()
	c.mu.Unlock()

	if err := c.deps.Tracker.TrackRecognitionFailure(r.ctx, r.sessionID, message, 0); err != nil {
		c.logger.Warn("track recognition failure failed", "error", err.Error())
	}
	c.deps.Indicator.ShowError(context.Background(), message)
	c.deps.Indicator.CueCancel(context.Background())
	c.logger.Warn("speech recognition error", "session_id", r.sessionID, "code", ev.Code, "error", message)
}

// teardown releases the engine and microphone, waits for in-flight
// processing, and records the session end.
func (c *Controller) teardown(r *run, reason string, failed bool) {
	c.deps.Recognizer.Stop()
	r.cancel()
	r.release()
	r.stream.Stop()

	c.mu.Lock()
	c.state.Listening = false
	if !failed {
		event := fsm.EventStop
		if reason == reasonEnded && c.state.Phase == fsm.StateListening {
			event = fsm.EventEnded
		}
		_ = c.transitionLocked(event)
	}
	c.publishLocked()
	c.mu.Unlock()

	r.processing.Wait()

	if err := c.deps.Tracker.TrackSessionEnd(context.Background(), reason); err != nil {
		c.logger.Warn("track session end failed", "error", err.Error())
	}
	hideCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	c.deps.Indicator.Hide(hideCtx)
	cancel()
	c.logger.Info("voice session ended", "session_id", r.sessionID, "reason", reason)

	c.mu.Lock()
	if c.run == r {
		c.run = nil
	}
	c.mu.Unlock()
	close(r.done)

	if c.opts.OnSessionEnd != nil {
		c.opts.OnSessionEnd(r.sessionID, r.trigger, reason)
	}
}
