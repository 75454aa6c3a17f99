package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/nexa/internal/api"
	"github.com/rbright/nexa/internal/api/repository"
	"github.com/rbright/nexa/internal/audio"
	"github.com/rbright/nexa/internal/config"
	"github.com/rbright/nexa/internal/effects"
	"github.com/rbright/nexa/internal/indicator"
	"github.com/rbright/nexa/internal/ipc"
	"github.com/rbright/nexa/internal/recognizer"
	"github.com/rbright/nexa/internal/session"
	"github.com/rbright/nexa/internal/speech"
	"github.com/rbright/nexa/internal/wakeword"
)

// commandRun owns the control socket and runs the voice daemon until ctx ends.
func (r Runner) commandRun(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.DefaultAcquireOptions())
	if err != nil {
		return r.fail(err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	recog, media, err := r.newRecognizer(logger, cfg)
	if err != nil {
		return r.fail(err)
	}

	in, err := newInterpreter(cfg.Interpreter)
	if err != nil {
		return r.fail(err)
	}
	browser, err := effects.NewBrowser(logger, cfg.Navigation, cfg.System)
	if err != nil {
		return r.fail(err)
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return r.fail(err)
	}
	defer func() { _ = store.Close() }()

	feedbackClient, err := newFeedbackClient(logger, store, cfg.Feedback)
	if err != nil {
		return r.fail(err)
	}

	notifier := indicator.NewNotifier(cfg.Indicator, logger)
	defer notifier.Wait()

	arbiter := speech.NewArbiter()
	d := newDaemon(logger)

	opts := sessionOptions(cfg.Session)
	opts.OnSessionEnd = d.sessionEnded
	controller, err := session.NewController(logger, session.Deps{
		Recognizer:  recog,
		Media:       media,
		Synthesizer: effects.NewSpeaker(logger, cfg.Speech.Speak.Argv),
		Arbiter:     arbiter,
		Interpreter: in,
		Executor:    newExecutor(logger, cfg.Executor, in.Grammar()),
		Effects:     browser.Effects(),
		Tracker:     newTracker(logger, store, cfg.Analytics),
		Feedback:    feedbackClient,
		Indicator:   notifier,
	}, opts)
	if err != nil {
		return r.fail(err)
	}
	d.controller = controller

	var repo *repository.Repository
	var server *api.Server
	if cfg.Server.Embed {
		repo, server, err = newAPIServer(ctx, logger, cfg.Server, in, controller)
		if err != nil {
			_ = controller.Close(context.Background())
			return r.fail(err)
		}
		defer func() { _ = repo.Close() }()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.ctx = runCtx

	if cfg.WakeWord.Enable {
		detector := wakeword.New(logger, recog, media, arbiter)
		wopts := wakeOptions(cfg.WakeWord)
		wopts.OnDetected = d.wakeDetected
		wopts.OnError = func(err error) {
			logger.Warn("wake word error", "error", err.Error())
		}
		if detector.Initialize(runCtx, wopts) {
			d.detector = detector
			d.wakeOpts = wopts
			defer detector.Cleanup()
		} else {
			logger.Warn("wake word detection unavailable; manual start only")
		}
	}

	if cfg.Session.EnableOnStart {
		if err := controller.SetEnabled(runCtx, true); err != nil {
			return r.fail(err)
		}
		d.resumeWake()
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return ipc.Serve(groupCtx, listener, d)
	})
	group.Go(func() error {
		return d.supervise(groupCtx)
	})
	group.Go(func() error {
		return feedbackClient.Run(groupCtx, millis(cfg.Feedback.SyncIntervalMS))
	})
	if server != nil {
		group.Go(func() error {
			return server.ListenAndServe(groupCtx, cfg.Server.Listen)
		})
	}

	logger.Info("voice daemon running",
		"socket", socketPath,
		"recognizer", cfg.Recognizer.Backend,
		"wake_word", d.detector != nil,
		"api", server != nil,
	)
	runErr := group.Wait()

	d.pauseWake()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer closeCancel()
	if err := controller.Close(closeCtx); err != nil {
		logger.Warn("close voice session", "error", err.Error())
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return r.fail(runErr)
	}
	logger.Info("voice daemon stopped")
	return 0
}

// newRecognizer builds the engine and microphone for the configured backend.
// The stdin backend reads one utterance per line and needs no microphone.
func (r Runner) newRecognizer(logger *slog.Logger, cfg config.Config) (speech.Recognizer, speech.MediaSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Recognizer.Backend)) {
	case "stdin":
		if r.Stdin == nil {
			return nil, nil, errors.New("stdin recognizer requires standard input")
		}
		media := speech.MediaSourceFunc(func(context.Context) (speech.MediaStream, error) {
			return speech.StreamFunc(nil), nil
		})
		return speech.NewLineRecognizer(r.Stdin), media, nil
	case "grpc":
		mic := audio.NewMicrophone(logger, cfg.Audio.Input, cfg.Audio.Fallback)
		client, err := recognizer.New(logger, recognizer.Config{
			Endpoint:     cfg.Recognizer.GRPC,
			LanguageCode: cfg.Recognizer.LanguageCode,
			DialTimeout:  millis(cfg.Recognizer.DialTimeoutMS),
		}, mic)
		if err != nil {
			return nil, nil, err
		}
		return client, mic, nil
	default:
		return nil, nil, fmt.Errorf("unsupported recognizer backend %q", cfg.Recognizer.Backend)
	}
}

// daemon hands the shared recognition engine back and forth between the
// wake word detector and the session controller.
type daemon struct {
	logger     *slog.Logger
	controller *session.Controller
	detector   *wakeword.Detector
	wakeOpts   wakeword.Options
	ctx        context.Context

	wakeMu     sync.Mutex
	detections chan wakeword.Detection
	ended      chan struct{}
}

func newDaemon(logger *slog.Logger) *daemon {
	return &daemon{
		logger:     logger,
		ctx:        context.Background(),
		detections: make(chan wakeword.Detection, 1),
		ended:      make(chan struct{}, 1),
	}
}

// wakeDetected runs on the detector goroutine, so it only queues the handoff.
func (d *daemon) wakeDetected(detection wakeword.Detection) {
	select {
	case d.detections <- detection:
	default:
	}
}

func (d *daemon) sessionEnded(sessionID string, trigger session.Trigger, reason string) {
	d.logger.Debug("listening session ended", "session_id", sessionID, "trigger", string(trigger), "reason", reason)
	select {
	case d.ended <- struct{}{}:
	default:
	}
}

func (d *daemon) supervise(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case detection := <-d.detections:
			d.logger.Info("wake word detected", "transcript", detection.Transcript, "confidence", detection.Confidence)
			d.pauseWake()
			if err := d.controller.StartListening(ctx, session.TriggerWakeWord); err != nil {
				d.logger.Warn("wake word session failed to start", "error", err.Error())
				d.resumeWake()
			}
		case <-d.ended:
			d.resumeWake()
		}
	}
}

// Handle wraps the controller so manual starts and enable changes keep the
// detector in step with the session.
func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStart:
		d.pauseWake()
		resp := d.controller.Handle(ctx, req)
		if !resp.OK {
			d.resumeWake()
		}
		return resp
	case ipc.CommandToggle, ipc.CommandEnable, ipc.CommandDisable:
		resp := d.controller.Handle(ctx, req)
		if d.controller.Snapshot().Enabled {
			d.resumeWake()
		} else {
			d.pauseWake()
		}
		return resp
	default:
		return d.controller.Handle(ctx, req)
	}
}

func (d *daemon) pauseWake() {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.detector != nil {
		d.detector.Stop()
	}
}

// resumeWake restarts passive listening when the assistant is enabled and no
// session holds the engine.
func (d *daemon) resumeWake() {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.detector == nil || d.ctx.Err() != nil {
		return
	}
	state := d.controller.Snapshot()
	if !state.Enabled || state.Listening {
		return
	}
	err := d.detector.Start(d.ctx)
	if errors.Is(err, wakeword.ErrNotInitialized) {
		d.detector.Stop()
		if !d.detector.Initialize(d.ctx, d.wakeOpts) {
			d.logger.Warn("wake word detection still unavailable")
			return
		}
		err = d.detector.Start(d.ctx)
	}
	if err != nil {
		d.logger.Warn("resume wake word detection", "error", err.Error())
	}
}
