// Package indicator shows voice session state as desktop notifications and
// plays short audio cues on session transitions.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/nexa/internal/config"
)

const (
	stickyTimeoutMS       = 300000
	defaultErrorTimeoutMS = 1200
	dispatchTimeout       = 400 * time.Millisecond
)

// Notifier implements the session indicator with freedesktop notifications.
// One notification is kept per Notifier and replaced on each state change.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	notify  func(context.Context, notification) (uint32, error)
	dismiss func(context.Context, uint32) error
	play    func(cue) error

	mu             sync.Mutex
	notificationID uint32

	soundMu sync.Mutex
	cues    sync.WaitGroup
}

// NewNotifier creates an indicator from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	n := &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: messagesFromEnv().withOverrides(cfg),
		notify:   desktopNotify,
		dismiss:  desktopDismiss,
	}
	n.play = func(c cue) error { return emitCue(c, n.cfg) }
	return n
}

// ShowListening signals that a command is being captured.
func (n *Notifier) ShowListening(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.show(ctx, notification{
			icon:      "audio-input-microphone",
			summary:   n.messages.listening,
			urgency:   urgencyNormal,
			timeoutMS: stickyTimeoutMS,
		})
	})
}

// ShowProcessing signals that a transcript is being interpreted and executed.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.show(ctx, notification{
			icon:      "system-run",
			summary:   n.messages.processing,
			urgency:   urgencyLow,
			timeoutMS: stickyTimeoutMS,
		})
	})
}

// ShowError displays an error message that expires on its own.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if strings.TrimSpace(text) == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorTimeoutMS
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.show(ctx, notification{
			icon:      "dialog-error",
			summary:   text,
			urgency:   urgencyCritical,
			timeoutMS: timeout,
		})
	})
}

// CueStart emits the listening-started cue.
func (n *Notifier) CueStart(context.Context) {
	n.playCue(cueStart)
}

// CueComplete emits the command-succeeded cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueCancel emits the failure cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		id := n.notificationID
		n.notificationID = 0
		n.mu.Unlock()

		if id == 0 {
			return nil
		}
		return n.dismiss(ctx, id)
	})
}

// Wait blocks until queued cues finish playing.
func (n *Notifier) Wait() {
	n.cues.Wait()
}

// show replaces the current notification with note and keeps its id.
func (n *Notifier) show(ctx context.Context, note notification) error {
	n.mu.Lock()
	note.replaceID = n.notificationID
	n.mu.Unlock()

	note.appName = strings.TrimSpace(n.cfg.DesktopAppName)
	if note.appName == "" {
		note.appName = "nexa"
	}

	id, err := n.notify(ctx, note)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.notificationID = id
	n.mu.Unlock()
	return nil
}

// run executes a notification call with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(c cue) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.play(c); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
