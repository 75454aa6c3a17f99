// Package audio handles PulseAudio device discovery, selection, microphone
// access, and 16 kHz PCM capture.
package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	applicationName = "nexa"
	chunkSizeBytes  = 640 // 20ms @ 16kHz mono s16

	// monitorSuffix marks sources that loop back a sink's output.
	monitorSuffix = ".monitor"
)

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
	Monitor     bool
}

// Usable reports whether speech can be captured from the device.
func (d Device) Usable() bool {
	return d.Available && !d.Muted && !d.Monitor
}

// blocker names the first condition that keeps the device from capturing.
func (d Device) blocker() string {
	switch {
	case d.Monitor:
		return "an output monitor"
	case !d.Available:
		return "unplugged"
	case d.Muted:
		return "muted"
	default:
		return ""
	}
}

// ListDevices returns the Pulse input sources, flagging the server default.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var reply pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return devicesFromSources(reply, defaultSource.ID()), nil
}

func devicesFromSources(sources []*pulseproto.GetSourceInfoReply, defaultID string) []Device {
	devices := make([]Device, 0, len(sources))
	for _, source := range sources {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceState(source.State),
			Available:   activePortAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
			Monitor:     strings.HasSuffix(source.SourceName, monitorSuffix),
		})
	}
	return devices
}

// pcmWriter feeds pulse.NewWriter.
type pcmWriter func([]byte) (int, error)

func (w pcmWriter) Write(b []byte) (int, error) {
	return w(b)
}

func sourceState(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("state-%d", state)
	}
}

// activePortAvailable treats sources without ports, or with an unknown port
// state, as plugged in.
func activePortAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	const portUnavailable = 1
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			return port.Available != portUnavailable
		}
	}
	return true
}
