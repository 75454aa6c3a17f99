package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/executor"
	"github.com/rbright/nexa/internal/grammar"
	"github.com/rbright/nexa/internal/interpreter"
	"github.com/rbright/nexa/internal/session"
	"github.com/rbright/nexa/internal/speech"
	"github.com/rbright/nexa/internal/wakeword"
)

// deniedOnceRecognizer rejects the microphone on its first run and then
// listens until cancelled.
type deniedOnceRecognizer struct {
	starts atomic.Int32
}

func (r *deniedOnceRecognizer) Start(ctx context.Context) (<-chan speech.Event, error) {
	events := make(chan speech.Event, 2)
	if r.starts.Add(1) == 1 {
		events <- speech.Failure(speech.CodeNotAllowed, nil)
		events <- speech.Ended()
		close(events)
		return events, nil
	}
	go func() {
		<-ctx.Done()
		events <- speech.Ended()
		close(events)
	}()
	return events, nil
}

func (*deniedOnceRecognizer) Stop()  {}
func (*deniedOnceRecognizer) Abort() {}

func TestDaemonReinitializesWakeWordAfterPermissionDenied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recog := &deniedOnceRecognizer{}
	media := speech.MediaSourceFunc(func(context.Context) (speech.MediaStream, error) {
		return speech.StreamFunc(func() {}), nil
	})
	arbiter := speech.NewArbiter()

	controller, err := session.NewController(nil, session.Deps{
		Recognizer:  recog,
		Media:       media,
		Arbiter:     arbiter,
		Interpreter: interpreter.New(grammar.Default(), interpreter.DefaultThresholds()),
		Executor:    executor.New(nil, executor.DefaultOptions()),
	}, session.DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = controller.Close(context.Background()) }()
	require.NoError(t, controller.SetEnabled(ctx, true))

	d := newDaemon(slog.New(slog.DiscardHandler))
	d.ctx = ctx
	d.controller = controller
	d.detector = wakeword.New(nil, recog, media, arbiter)
	require.True(t, d.detector.Initialize(ctx, d.wakeOpts))
	defer d.detector.Cleanup()

	d.resumeWake()
	require.Eventually(t, func() bool {
		return d.detector.Status().State == wakeword.StateIdle && arbiter.Owner() == ""
	}, time.Second, 5*time.Millisecond)

	d.resumeWake()
	require.Eventually(t, func() bool { return d.detector.Status().Active }, time.Second, 5*time.Millisecond)
	require.Equal(t, wakeword.StateListening, d.detector.Status().State)
	require.Equal(t, int32(2), recog.starts.Load())
}
