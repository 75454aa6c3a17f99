package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	sampleRate = 16000
	// voicedRMS is the normalized frame energy above which a frame counts as speech.
	voicedRMS = 0.015
)

// Stats summarizes one capture.
type Stats struct {
	Bytes  int64
	Frames int
	Voiced int
	Peak   float64
}

// Capture streams 20 ms PCM frames from one Pulse source.
type Capture struct {
	device Device
	client *pulse.Client
	stream *pulse.RecordStream

	frames  chan []byte
	done    chan struct{}
	once    sync.Once
	unwatch func() bool

	mu       sync.Mutex
	closed   bool
	pending  []byte
	stats    Stats
	inflight sync.WaitGroup
}

func newCapture(device Device, buffer int) *Capture {
	return &Capture{
		device: device,
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// StartCapture records 16 kHz mono s16le from device until Stop or until ctx
// ends.
func StartCapture(ctx context.Context, device Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("audio source %q: %w", device.ID, err)
	}

	c := newCapture(device, 128)
	c.client = client
	c.stream, err = client.NewRecord(
		pulse.NewWriter(pcmWriter(c.onPCM), pulseproto.FormatInt16LE),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("nexa voice command"),
	)
	if err != nil {
		_ = c.Stop()
		return nil, fmt.Errorf("open record stream on %q: %w", device.ID, err)
	}
	c.stream.Start()

	c.unwatch = context.AfterFunc(ctx, func() { _ = c.Stop() })
	return c, nil
}

// Device is the source being recorded.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks delivers fixed-size frames; the last one may be shorter.
func (c *Capture) Chunks() <-chan []byte {
	return c.frames
}

// Stats reports totals so far. It is final once Chunks is closed.
func (c *Capture) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Stop ends recording, delivers any partial frame and closes Chunks. It is
// safe to call more than once.
func (c *Capture) Stop() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		if c.unwatch != nil {
			c.unwatch()
		}

		if c.stream != nil {
			c.stream.Stop()
			c.stream.Close()
		}
		if c.client != nil {
			c.client.Close()
		}
		c.inflight.Wait()

		if tail := c.pending; len(tail) > 0 {
			c.pending = nil
			select {
			case c.frames <- tail:
			default:
			}
		}
		close(c.frames)
	})
	return nil
}

// onPCM is the Pulse writer callback. It splits the stream into frames and
// blocks until the consumer takes them or the capture stops.
func (c *Capture) onPCM(buf []byte) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, io.EOF
	}
	c.inflight.Add(1)
	defer c.inflight.Done()

	c.pending = append(c.pending, buf...)
	var ready [][]byte
	for len(c.pending) >= chunkSizeBytes {
		frame := make([]byte, chunkSizeBytes)
		copy(frame, c.pending)
		c.pending = c.pending[chunkSizeBytes:]
		ready = append(ready, frame)
		c.measure(frame)
	}
	c.stats.Bytes += int64(len(buf))
	c.mu.Unlock()

	for _, frame := range ready {
		select {
		case <-c.done:
			return 0, io.EOF
		case c.frames <- frame:
		}
	}
	return len(buf), nil
}

// measure updates frame statistics. Callers hold c.mu.
func (c *Capture) measure(frame []byte) {
	level := frameRMS(frame)
	c.stats.Frames++
	if level >= voicedRMS {
		c.stats.Voiced++
	}
	c.stats.Peak = max(c.stats.Peak, level)
}

// frameRMS is the root mean square of s16le samples, normalized to [0, 1].
func frameRMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[2*i:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
