// Package session coordinates the voice session lifecycle: permission,
// listening, command processing, and the observable state around them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/nexa/internal/analytics"
	"github.com/rbright/nexa/internal/executor"
	"github.com/rbright/nexa/internal/feedback"
	"github.com/rbright/nexa/internal/fsm"
	"github.com/rbright/nexa/internal/interpreter"
	"github.com/rbright/nexa/internal/speech"
)

// Trigger names what opened a listening session.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerWakeWord Trigger = "wake-word"
)

var (
	// ErrDisabled reports a request made while the assistant is switched off.
	ErrDisabled = errors.New("voice assistant is disabled")
	// ErrBusy reports a command submitted while another one is processing.
	ErrBusy = errors.New("a command is already processing")
	// ErrClosed reports use after Close.
	ErrClosed = errors.New("voice session controller closed")
)

// State is the observable voice session state. Callers only ever hold copies.
type State struct {
	Enabled        bool      `json:"enabled"`
	Listening      bool      `json:"listening"`
	Processing     bool      `json:"processing"`
	HasPermission  bool      `json:"hasPermission"`
	Command        string    `json:"command"`
	Response       string    `json:"response"`
	Error          string    `json:"error,omitempty"`
	LastConfidence float64   `json:"lastConfidence"`
	Phase          fsm.State `json:"phase"`
	SessionID      string    `json:"sessionId,omitempty"`
	Trigger        Trigger   `json:"trigger,omitempty"`
}

func initialState() State {
	return State{Phase: fsm.StateIdle}
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowProcessing(context.Context)
	ShowError(context.Context, string)
	CueStart(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStart(context.Context)          {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

// Tracker is the analytics surface the controller reports to.
type Tracker interface {
	TrackCommand(context.Context, analytics.CommandRecord) error
	TrackRecognitionFailure(ctx context.Context, sessionID, message string, confidence float64) error
	TrackSessionStart(context.Context, analytics.SessionStart) error
	TrackSessionEnd(ctx context.Context, reason string) error
}

type noopTracker struct{}

func (noopTracker) TrackCommand(context.Context, analytics.CommandRecord) error { return nil }
func (noopTracker) TrackRecognitionFailure(context.Context, string, string, float64) error {
	return nil
}
func (noopTracker) TrackSessionStart(context.Context, analytics.SessionStart) error { return nil }
func (noopTracker) TrackSessionEnd(context.Context, string) error                   { return nil }

// FeedbackSubmitter receives automatic ratings for confident successes.
type FeedbackSubmitter interface {
	Submit(context.Context, feedback.Item) feedback.SubmitResult
}

// Deps wires the controller to its capabilities. Recognizer, Media,
// Interpreter and Executor are required; the rest fall back to no-ops.
type Deps struct {
	Recognizer  speech.Recognizer
	Media       speech.MediaSource
	Synthesizer speech.Synthesizer
	Arbiter     *speech.Arbiter
	Interpreter *interpreter.Interpreter
	Executor    *executor.Executor
	Effects     executor.Effects
	Tracker     Tracker
	Feedback    FeedbackSubmitter
	Indicator   Indicator
}

// Options tunes session behavior.
type Options struct {
	ListeningTimeout         time.Duration
	MinRecognitionConfidence float64
	SpeakResponses           bool
	AutoFeedback             bool
	AutoFeedbackConfidence   float64
	// OnSessionEnd runs after a listening session is fully torn down.
	OnSessionEnd func(sessionID string, trigger Trigger, reason string)
}

// DefaultOptions returns the stock session tuning.
func DefaultOptions() Options {
	return Options{
		ListeningTimeout:         10 * time.Second,
		MinRecognitionConfidence: 0.2,
		SpeakResponses:           true,
		AutoFeedback:             true,
		AutoFeedbackConfidence:   0.8,
	}
}

// Controller owns the voice session state and the listening run.
type Controller struct {
	logger *slog.Logger
	deps   Deps
	opts   Options
	now    func() time.Time

	mu      sync.RWMutex
	state   State
	run     *run
	attempt int
	closed  bool
	subs    map[int]chan State
	nextID  int

	bgCtx      context.Context
	bgCancel   context.CancelFunc
	background sync.WaitGroup
}

// NewController validates deps and returns an idle, disabled controller.
func NewController(logger *slog.Logger, deps Deps, opts Options) (*Controller, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	switch {
	case deps.Recognizer == nil:
		return nil, fmt.Errorf("session requires a recognizer: %w", speech.ErrUnsupported)
	case deps.Media == nil:
		return nil, fmt.Errorf("session requires a media source: %w", speech.ErrUnsupported)
	case deps.Interpreter == nil:
		return nil, errors.New("session requires an interpreter")
	case deps.Executor == nil:
		return nil, errors.New("session requires an executor")
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = speech.NopSynthesizer{}
	}
	if deps.Arbiter == nil {
		deps.Arbiter = speech.NewArbiter()
	}
	if deps.Tracker == nil {
		deps.Tracker = noopTracker{}
	}
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}

	def := DefaultOptions()
	if opts.ListeningTimeout <= 0 {
		opts.ListeningTimeout = def.ListeningTimeout
	}
	if opts.MinRecognitionConfidence < 0 {
		opts.MinRecognitionConfidence = 0
	}
	if opts.AutoFeedbackConfidence <= 0 {
		opts.AutoFeedbackConfidence = def.AutoFeedbackConfidence
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Controller{
		logger:   logger,
		deps:     deps,
		opts:     opts,
		now:      time.Now,
		state:    initialState(),
		subs:     make(map[int]chan State),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a feed of state changes starting with the current state.
// Slow readers only miss intermediate states; the latest is always delivered.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan State, 8)
	if c.closed {
		ch <- c.state
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// ToggleEnabled flips the enabled flag and returns the new value.
// Disabling stops any listening session.
func (c *Controller) ToggleEnabled(ctx context.Context) (bool, error) {
	return c.updateEnabled(ctx, func(current bool) bool { return !current })
}

// SetEnabled switches the assistant on or off.
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	_, err := c.updateEnabled(ctx, func(bool) bool { return enabled })
	return err
}

func (c *Controller) updateEnabled(ctx context.Context, next func(bool) bool) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	enabled := next(c.state.Enabled)
	c.state.Enabled = enabled
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("voice assistant toggled", "enabled", enabled)
	if !enabled {
		return false, c.StopListening(ctx)
	}
	return true, nil
}

// Close stops the engine, releases the microphone, waits for background
// work and resets the state to its initial value. It is idempotent.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	r := c.run
	c.mu.Unlock()

	var err error
	if r != nil {
		r.requestStop(reasonUnmount)
		err = r.wait(ctx)
	}
	c.bgCancel()
	c.deps.Synthesizer.Cancel()
	c.background.Wait()

	c.mu.Lock()
	c.state = initialState()
	c.publishLocked()
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
	c.mu.Unlock()
	return err
}

// transitionLocked applies one FSM event to the phase. Callers hold c.mu.
func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state.Phase, event)
	if err != nil {
		return err
	}
	c.state.Phase = next
	return nil
}

// failLocked records message and settles in the error phase. Callers hold c.mu.
func (c *Controller) failLocked(message string) {
	c.state.Error = message
	c.state.Listening = false
	_ = c.transitionLocked(fsm.EventFail)
}

// publishLocked fans the current state out to subscribers. Callers hold c.mu.
func (c *Controller) publishLocked() {
	snapshot := c.state
	for _, sub := range c.subs {
		select {
		case sub <- snapshot:
		default:
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- snapshot:
			default:
			}
		}
	}
}

func (c *Controller) goBackground(fn func()) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		fn()
	}()
}
