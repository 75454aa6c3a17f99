package speech

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// LineRecognizer treats each non-empty input line as a final transcript with full confidence.
type LineRecognizer struct {
	reader io.Reader

	startOnce sync.Once
	lines     chan string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

// NewLineRecognizer reads transcripts from r.
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{reader: r, lines: make(chan string)}
}

// Start begins forwarding lines until Stop, Abort, ctx cancellation or end of input.
func (l *LineRecognizer) Start(ctx context.Context) (<-chan Event, error) {
	l.startOnce.Do(func() { go l.scan() })

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, ErrEngineBusy
	}
	l.running = true
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	events := make(chan Event, 4)
	go func() {
		defer close(events)
		defer l.finish(stop)
		for {
			select {
			case <-ctx.Done():
				events <- Ended()
				return
			case <-stop:
				events <- Ended()
				return
			case line, ok := <-l.lines:
				if !ok {
					events <- Ended()
					return
				}
				select {
				case events <- Transcript(line, 1, true):
				case <-stop:
					events <- Ended()
					return
				case <-ctx.Done():
					events <- Ended()
					return
				}
			}
		}
	}()
	return events, nil
}

// Stop ends the active run.
func (l *LineRecognizer) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running && l.stop != nil {
		close(l.stop)
		l.stop = nil
	}
}

// Abort is Stop; buffered lines are kept for the next run.
func (l *LineRecognizer) Abort() {
	l.Stop()
}

func (l *LineRecognizer) finish(stop chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	if l.stop == stop {
		l.stop = nil
	}
}

func (l *LineRecognizer) scan() {
	defer close(l.lines)
	scanner := bufio.NewScanner(l.reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		l.lines <- line
	}
}
