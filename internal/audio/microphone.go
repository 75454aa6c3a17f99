package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/nexa/internal/speech"
)

// Microphone grants microphone access by resolving the configured input
// device. Acquire is the permission check; Open starts PCM capture on the
// device resolved by the latest Acquire.
type Microphone struct {
	logger *slog.Logger
	pref   Preference
	list   func(context.Context) ([]Device, error)
	start  func(context.Context, Device) (*Capture, error)

	mu       sync.Mutex
	selected *Device
	leases   int
}

// NewMicrophone selects from live Pulse sources using audio.input and audio.fallback.
func NewMicrophone(logger *slog.Logger, input, fallback string) *Microphone {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Microphone{
		logger: logger,
		pref:   Preference{Input: input, Fallback: fallback},
		list:   ListDevices,
		start:  StartCapture,
	}
}

// Acquire resolves a usable input device. Muted or unavailable devices yield
// speech.ErrPermissionDenied; a missing Pulse server yields speech.ErrUnsupported.
func (m *Microphone) Acquire(ctx context.Context) (speech.MediaStream, error) {
	devices, err := m.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
	}
	selection, err := m.pref.Resolve(devices)
	if err != nil {
		if errors.Is(err, ErrNoDevices) {
			return nil, fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
		}
		return nil, err
	}
	if selection.Warning != "" {
		m.logger.Warn("audio input fallback", "warning", selection.Warning)
	}

	m.mu.Lock()
	device := selection.Device
	m.selected = &device
	m.leases++
	m.mu.Unlock()

	m.logger.Debug("microphone acquired", "device", device.ID)
	var once sync.Once
	return speech.StreamFunc(func() {
		once.Do(m.release)
	}), nil
}

func (m *Microphone) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases > 0 {
		m.leases--
	}
	if m.leases == 0 {
		m.selected = nil
	}
}

// Open starts capture on the acquired device, or on a freshly selected one
// when nothing is held.
func (m *Microphone) Open(ctx context.Context) (PCMSource, error) {
	m.mu.Lock()
	selected := m.selected
	m.mu.Unlock()

	var device Device
	if selected != nil {
		device = *selected
	} else {
		devices, err := m.list(ctx)
		if err != nil {
			return nil, err
		}
		selection, err := m.pref.Resolve(devices)
		if err != nil {
			return nil, err
		}
		device = selection.Device
	}

	capture, err := m.start(ctx, device)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

// Held reports whether any Acquire lease is outstanding.
func (m *Microphone) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases > 0
}

// PCMSource is a running capture delivering 16 kHz mono s16le chunks. Stop
// closes Chunks.
type PCMSource interface {
	Chunks() <-chan []byte
	Stop() error
}
