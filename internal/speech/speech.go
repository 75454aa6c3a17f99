// Package speech defines the recognition, synthesis, and media capabilities the voice core consumes.
package speech

import (
	"context"
	"errors"
)

// EventKind tags a recognition event.
type EventKind int

const (
	TranscriptReceived EventKind = iota + 1
	RecognitionError
	RecognitionEnded
)

func (k EventKind) String() string {
	switch k {
	case TranscriptReceived:
		return "transcript"
	case RecognitionError:
		return "error"
	case RecognitionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Error codes reported by recognition engines.
const (
	CodeNotAllowed = "not-allowed"
	CodeNoSpeech   = "no-speech"
	CodeNetwork    = "network"
	CodeAborted    = "aborted"
)

// Event is one typed notification from a recognition engine.
type Event struct {
	Kind       EventKind
	Transcript string
	Confidence float64
	Final      bool
	Code       string
	Err        error
}

// Transcript builds a TranscriptReceived event.
func Transcript(text string, confidence float64, final bool) Event {
	return Event{Kind: TranscriptReceived, Transcript: text, Confidence: confidence, Final: final}
}

// Failure builds a RecognitionError event.
func Failure(code string, err error) Event {
	return Event{Kind: RecognitionError, Code: code, Err: err}
}

// Ended builds a RecognitionEnded event.
func Ended() Event {
	return Event{Kind: RecognitionEnded}
}

// IsPermissionError reports whether an event reports denied microphone access.
func (e Event) IsPermissionError() bool {
	return e.Kind == RecognitionError && e.Code == CodeNotAllowed
}

// Recognizer is a continuous speech recognition engine.
//
// Start begins one recognition run. The returned channel delivers events until
// a RecognitionEnded event, after which it is closed. Stop ends the run
// gracefully; Abort discards pending audio.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Event, error)
	Stop()
	Abort()
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// NopSynthesizer discards speech.
type NopSynthesizer struct{}

func (NopSynthesizer) Speak(context.Context, string) error { return nil }
func (NopSynthesizer) Cancel()                             {}

// MediaStream is an acquired microphone handle.
type MediaStream interface {
	Stop()
}

// MediaSource grants access to the microphone.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// MediaSourceFunc adapts a function to MediaSource.
type MediaSourceFunc func(context.Context) (MediaStream, error)

func (f MediaSourceFunc) Acquire(ctx context.Context) (MediaStream, error) {
	return f(ctx)
}

// StreamFunc adapts a function to MediaStream.
type StreamFunc func()

func (f StreamFunc) Stop() {
	if f != nil {
		f()
	}
}

var (
	// ErrPermissionDenied reports that microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrUnsupported reports that no recognition engine or microphone is available.
	ErrUnsupported = errors.New("speech recognition not supported")
)
