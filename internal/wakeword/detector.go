// Package wakeword listens passively for a trigger phrase and hands off to command listening.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rbright/nexa/internal/fuzzy"
	"github.com/rbright/nexa/internal/speech"
)

// StatusChange is reported through Options.OnStatusChange.
type StatusChange string

const (
	StatusStarted  StatusChange = "started"
	StatusStopped  StatusChange = "stopped"
	StatusDetected StatusChange = "wake_word_detected"
)

// Detection describes one fired wake word.
type Detection struct {
	WakeWord   string
	Transcript string
	Confidence float64
	At         time.Time
}

// Options configures a detector. Zero values fall back to DefaultOptions.
type Options struct {
	WakeWord        string
	Sensitivity     float64
	WordSimilarity  float64
	MatchRatio      float64
	Cooldown        time.Duration
	RestartDelay    time.Duration
	EndRestartDelay time.Duration

	// OnDetected runs on the listening goroutine and must not call Stop.
	OnDetected     func(Detection)
	OnError        func(error)
	OnStatusChange func(StatusChange)
}

// DefaultOptions returns the stock wake word tuning.
func DefaultOptions() Options {
	return Options{
		WakeWord:        "hey nexa",
		Sensitivity:     0.7,
		WordSimilarity:  0.75,
		MatchRatio:      0.7,
		Cooldown:        2 * time.Second,
		RestartDelay:    time.Second,
		EndRestartDelay: 100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	o.WakeWord = normalize(o.WakeWord)
	if o.WakeWord == "" {
		o.WakeWord = def.WakeWord
	}
	if o.Sensitivity <= 0 {
		o.Sensitivity = def.Sensitivity
	}
	o.Sensitivity = clamp(o.Sensitivity)
	if o.WordSimilarity <= 0 {
		o.WordSimilarity = def.WordSimilarity
	}
	if o.MatchRatio <= 0 {
		o.MatchRatio = def.MatchRatio
	}
	if o.Cooldown <= 0 {
		o.Cooldown = def.Cooldown
	}
	if o.RestartDelay <= 0 {
		o.RestartDelay = def.RestartDelay
	}
	if o.EndRestartDelay <= 0 {
		o.EndRestartDelay = def.EndRestartDelay
	}
	return o
}

// Status is a point-in-time view of the detector.
type Status struct {
	Active      bool    `json:"active"`
	Listening   bool    `json:"listening"`
	WakeWord    string  `json:"wakeWord"`
	Sensitivity float64 `json:"sensitivity"`
	Supported   bool    `json:"supported"`
	State       State   `json:"state"`
}

// ErrNotInitialized is returned by Start before a successful Initialize and
// after the microphone permission was denied.
var ErrNotInitialized = errors.New("wake word detector not initialized")

// Detector runs continuous recognition and fires when the wake word is heard.
type Detector struct {
	logger     *slog.Logger
	recognizer speech.Recognizer
	media      speech.MediaSource
	arbiter    *speech.Arbiter
	now        func() time.Time

	mu            sync.Mutex
	opts          Options
	state         State
	active        bool
	lastDetection time.Time
	stream        speech.MediaStream
	release       func()
	cancel        context.CancelFunc
	done          chan struct{}
}

// New constructs a detector. A nil arbiter gets a private one.
func New(logger *slog.Logger, recognizer speech.Recognizer, media speech.MediaSource, arbiter *speech.Arbiter) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if arbiter == nil {
		arbiter = speech.NewArbiter()
	}
	return &Detector{
		logger:     logger,
		recognizer: recognizer,
		media:      media,
		arbiter:    arbiter,
		now:        time.Now,
		opts:       DefaultOptions(),
		state:      StateIdle,
	}
}

// Initialize verifies microphone access and stores opts. Failures go to OnError.
func (d *Detector) Initialize(ctx context.Context, opts Options) bool {
	opts = opts.withDefaults()

	d.mu.Lock()
	d.opts = opts
	if d.active {
		d.mu.Unlock()
		d.reportError(errors.New("wake word detector is listening; stop it before re-initializing"))
		return false
	}
	if d.recognizer == nil || d.media == nil {
		d.mu.Unlock()
		d.reportError(fmt.Errorf("%w: recognizer or microphone unavailable", speech.ErrUnsupported))
		return false
	}
	if err := d.transitionLocked(EventInitialize); err != nil {
		d.mu.Unlock()
		d.reportError(err)
		return false
	}
	d.mu.Unlock()

	stream, err := d.media.Acquire(ctx)
	if err != nil {
		d.mu.Lock()
		_ = d.transitionLocked(EventFail)
		d.mu.Unlock()
		d.reportError(fmt.Errorf("microphone access: %w", err))
		return false
	}
	stream.Stop()

	d.mu.Lock()
	_ = d.transitionLocked(EventInitialized)
	d.mu.Unlock()
	d.logger.Info("wake word detector initialized", "wake_word", opts.WakeWord, "sensitivity", opts.Sensitivity)
	return true
}

// Start begins continuous listening. It is a no-op while already listening.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil
	}
	if d.state != StateStopped {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	d.mu.Unlock()

	release, err := d.arbiter.Acquire(speech.OwnerWakeWord)
	if err != nil {
		return err
	}
	stream, err := d.media.Acquire(ctx)
	if err != nil {
		release()
		err = fmt.Errorf("microphone access: %w", err)
		d.reportError(err)
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	d.mu.Lock()
	if err := d.transitionLocked(EventStart); err != nil {
		d.mu.Unlock()
		cancel()
		stream.Stop()
		release()
		return err
	}
	d.active = true
	d.stream = stream
	d.release = release
	d.cancel = cancel
	d.done = done
	d.mu.Unlock()

	go d.loop(loopCtx, done)
	d.notify(StatusStarted)
	return nil
}

// Stop ends listening and releases the microphone and engine lease. It is idempotent.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel, done, wasActive := d.cancel, d.done, d.active
	d.active = false
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		if wasActive {
			d.recognizer.Stop()
		}
	}
	if done != nil {
		<-done
	}

	d.mu.Lock()
	_ = d.transitionLocked(EventStop)
	d.mu.Unlock()

	if wasActive {
		d.notify(StatusStopped)
	}
}

// Cleanup stops the detector and clears callbacks. It is idempotent.
func (d *Detector) Cleanup() {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.OnDetected = nil
	d.opts.OnError = nil
	d.opts.OnStatusChange = nil
	_ = d.transitionLocked(EventCleanup)
}

// SetWakeWord replaces the trigger phrase. Blank phrases are ignored.
func (d *Detector) SetWakeWord(phrase string) {
	phrase = normalize(phrase)
	if phrase == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.WakeWord = phrase
}

// SetSensitivity sets the minimum recognizer confidence, clamped to [0,1].
func (d *Detector) SetSensitivity(sensitivity float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts.Sensitivity = clamp(sensitivity)
}

// Status returns a snapshot of the detector.
func (d *Detector) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Active:      d.active,
		Listening:   d.state == StateListening,
		WakeWord:    d.opts.WakeWord,
		Sensitivity: d.opts.Sensitivity,
		Supported:   d.recognizer != nil && d.media != nil,
		State:       d.state,
	}
}

func (d *Detector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.teardown()

	for {
		delay, keepGoing := d.runOnce(ctx)
		if !keepGoing || !d.isActive() {
			return
		}

		d.mu.Lock()
		_ = d.transitionLocked(EventRestart)
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if !d.isActive() {
			return
		}

		d.mu.Lock()
		_ = d.transitionLocked(EventResume)
		d.mu.Unlock()
	}
}

// runOnce drives one recognizer run and returns the delay before the next one.
func (d *Detector) runOnce(ctx context.Context) (time.Duration, bool) {
	opts := d.options()

	events, err := d.recognizer.Start(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		d.logger.Warn("wake word recognizer failed to start", "error", err.Error())
		d.reportError(err)
		return opts.RestartDelay, true
	}

	delay := opts.EndRestartDelay
	keepGoing := true
	for ev := range events {
		switch ev.Kind {
		case speech.TranscriptReceived:
			d.check(ev)
		case speech.RecognitionError:
			if ev.IsPermissionError() {
				d.logger.Warn("wake word listening stopped: microphone permission denied")
				d.reportError(fmt.Errorf("%w: %s", speech.ErrPermissionDenied, ev.Code))
				d.deactivate()
				keepGoing = false
				continue
			}
			if ev.Code == speech.CodeAborted {
				continue
			}
			d.logger.Debug("wake word recognition error; restarting", "code", ev.Code)
			delay = opts.RestartDelay
		case speech.RecognitionEnded:
		}
	}

	if ctx.Err() != nil {
		return 0, false
	}
	return delay, keepGoing
}

func (d *Detector) check(ev speech.Event) {
	d.mu.Lock()
	opts := d.opts
	if !d.active || !matches(opts, ev.Transcript, ev.Confidence) {
		d.mu.Unlock()
		return
	}
	now := d.now()
	if !d.lastDetection.IsZero() && now.Sub(d.lastDetection) < opts.Cooldown {
		d.mu.Unlock()
		return
	}
	d.lastDetection = now
	d.mu.Unlock()

	d.logger.Info("wake word detected", "transcript", ev.Transcript, "confidence", ev.Confidence)
	d.notify(StatusDetected)
	if opts.OnDetected != nil {
		opts.OnDetected(Detection{
			WakeWord:   opts.WakeWord,
			Transcript: ev.Transcript,
			Confidence: ev.Confidence,
			At:         now,
		})
	}
}

// matches tests containment first, then word-level fuzzy coverage.
func matches(opts Options, transcript string, confidence float64) bool {
	if confidence < opts.Sensitivity {
		return false
	}
	normalized := normalize(transcript)
	if normalized == "" {
		return false
	}
	if strings.Contains(normalized, opts.WakeWord) {
		return true
	}
	match := fuzzy.MatchWordsContaining(strings.Fields(normalized), strings.Fields(opts.WakeWord), opts.WordSimilarity)
	return match.Matched > 0 && match.Ratio() >= opts.MatchRatio
}

func (d *Detector) deactivate() {
	d.mu.Lock()
	wasActive := d.active
	d.active = false
	_ = d.transitionLocked(EventDenied)
	d.mu.Unlock()
	if wasActive {
		d.notify(StatusStopped)
	}
}

// teardown releases the resources held for one Start.
func (d *Detector) teardown() {
	d.mu.Lock()
	stream, release, cancel := d.stream, d.release, d.cancel
	d.stream, d.release, d.cancel, d.done = nil, nil, nil, nil
	wasActive := d.active
	d.active = false
	_ = d.transitionLocked(EventStop)
	d.mu.Unlock()

	if wasActive {
		d.notify(StatusStopped)
	}

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		stream.Stop()
	}
	if release != nil {
		release()
	}
}

func (d *Detector) isActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Detector) options() Options {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opts
}

func (d *Detector) reportError(err error) {
	d.mu.Lock()
	onError := d.opts.OnError
	d.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func (d *Detector) notify(change StatusChange) {
	d.mu.Lock()
	onStatus := d.opts.OnStatusChange
	d.mu.Unlock()
	if onStatus != nil {
		onStatus(change)
	}
}

func (d *Detector) transitionLocked(event Event) error {
	next, err := Transition(d.state, event)
	if err != nil {
		return err
	}
	d.state = next
	return nil
}

// normalize lowercases, drops punctuation and collapses whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
