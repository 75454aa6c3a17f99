package speech

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventHelpers(t *testing.T) {
	ev := Transcript("go to dashboard", 0.9, true)
	require.Equal(t, TranscriptReceived, ev.Kind)
	require.Equal(t, "transcript", ev.Kind.String())
	require.False(t, ev.IsPermissionError())

	denied := Failure(CodeNotAllowed, ErrPermissionDenied)
	require.True(t, denied.IsPermissionError())
	require.ErrorIs(t, denied.Err, ErrPermissionDenied)

	require.False(t, Failure(CodeNetwork, errors.New("offline")).IsPermissionError())
	require.Equal(t, "ended", Ended().Kind.String())
	require.Equal(t, "unknown", EventKind(42).String())
}

func TestArbiterExclusiveOwnership(t *testing.T) {
	a := NewArbiter()

	release, err := a.Acquire(OwnerWakeWord)
	require.NoError(t, err)
	require.Equal(t, OwnerWakeWord, a.Owner())

	_, err = a.Acquire(OwnerSession)
	require.ErrorIs(t, err, ErrEngineBusy)
	require.Contains(t, err.Error(), "wake-word")

	release()
	release()
	require.Equal(t, Owner(""), a.Owner())

	releaseSession, err := a.Acquire(OwnerSession)
	require.NoError(t, err)
	defer releaseSession()
	require.Equal(t, OwnerSession, a.Owner())
}

func TestArbiterStaleReleaseKeepsNewerLease(t *testing.T) {
	a := NewArbiter()

	first, err := a.Acquire(OwnerSession)
	require.NoError(t, err)
	second, err := a.Acquire(OwnerSession)
	require.NoError(t, err)

	first()
	require.Equal(t, OwnerSession, a.Owner())
	second()
	require.Equal(t, Owner(""), a.Owner())
}

func TestLineRecognizerEmitsFinalTranscripts(t *testing.T) {
	rec := NewLineRecognizer(strings.NewReader("go to dashboard\n\n  search for Bob  \n"))

	events, err := rec.Start(context.Background())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	require.Equal(t, Transcript("go to dashboard", 1, true), got[0])
	require.Equal(t, Transcript("search for Bob", 1, true), got[1])
	require.Equal(t, RecognitionEnded, got[2].Kind)
}

func TestLineRecognizerStopAndRestart(t *testing.T) {
	pr, pw := io.Pipe()
	rec := NewLineRecognizer(pr)

	events, err := rec.Start(context.Background())
	require.NoError(t, err)

	_, err = rec.Start(context.Background())
	require.ErrorIs(t, err, ErrEngineBusy)

	go func() { _, _ = pw.Write([]byte("open invoices\n")) }()
	require.Equal(t, "open invoices", receive(t, events).Transcript)

	rec.Stop()
	require.Equal(t, RecognitionEnded, receive(t, events).Kind)
	drain(events)

	events, err = rec.Start(context.Background())
	require.NoError(t, err)
	go func() { _, _ = pw.Write([]byte("help\n")) }()
	require.Equal(t, "help", receive(t, events).Transcript)

	require.NoError(t, pw.Close())
	require.Equal(t, RecognitionEnded, receive(t, events).Kind)
	drain(events)
}

func TestLineRecognizerContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()
	rec := NewLineRecognizer(pr)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := rec.Start(ctx)
	require.NoError(t, err)

	cancel()
	require.Equal(t, RecognitionEnded, receive(t, events).Kind)
	drain(events)
}

func TestNopSynthesizerAndAdapters(t *testing.T) {
	require.NoError(t, NopSynthesizer{}.Speak(context.Background(), "hello"))
	NopSynthesizer{}.Cancel()

	stopped := false
	src := MediaSourceFunc(func(context.Context) (MediaStream, error) {
		return StreamFunc(func() { stopped = true }), nil
	})
	stream, err := src.Acquire(context.Background())
	require.NoError(t, err)
	stream.Stop()
	require.True(t, stopped)

	StreamFunc(nil).Stop()
}

func receive(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func drain(events <-chan Event) {
	for range events {
	}
}
