package effects

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/rbright/nexa/internal/speech"
)

// Speaker is a speech.Synthesizer that pipes text to a text-to-speech command.
// At most one utterance plays; Cancel kills it.
type Speaker struct {
	logger *slog.Logger
	argv   []string
	run    func(ctx context.Context, argv []string, input string) error

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

var _ speech.Synthesizer = (*Speaker)(nil)

// NewSpeaker returns a NopSynthesizer when argv is empty.
func NewSpeaker(logger *slog.Logger, argv []string) speech.Synthesizer {
	if len(argv) == 0 {
		return speech.NopSynthesizer{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Speaker{logger: logger, argv: argv, run: runArgv}
}

// Speak blocks until the command exits, ctx ends, or Cancel is called.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	seq := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.seq == seq {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	err := s.run(runCtx, s.argv, text)
	if err != nil && runCtx.Err() != nil {
		// Interrupted utterances are not failures.
		return nil
	}
	if err != nil {
		s.logger.Warn("speech command failed", "error", err.Error())
	}
	return err
}

// Cancel stops the current utterance.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
