package audio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rbright/nexa/internal/speech"
)

var (
	// ErrNoDevices reports a Pulse server without input sources.
	ErrNoDevices = errors.New("no audio input devices found")
	// ErrNoMatch reports a configured device name that matches nothing.
	ErrNoMatch = errors.New("no matching audio input")
)

// Preference is the configured microphone choice. An empty or "default"
// term means the server default source.
type Preference struct {
	Input    string
	Fallback string
}

// Selection is the resolved capture source. Warning explains a fallback.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// SelectDevice resolves audio.input and audio.fallback against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return Preference{Input: input, Fallback: fallback}.Resolve(devices)
}

// Resolve picks the preferred device, or the fallback when the preferred one
// cannot capture. A fallback that cannot capture either denies microphone
// access with speech.ErrPermissionDenied.
func (p Preference) Resolve(devices []Device) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, ErrNoDevices
	}

	primary, err := pick(devices, p.Input)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input: %w", err)
	}
	if primary.Usable() {
		return Selection{Device: primary}, nil
	}

	backup, err := pick(devices, p.Fallback)
	if err != nil {
		return Selection{}, fmt.Errorf("audio.input %q is %s; audio.fallback: %w", primary.ID, primary.blocker(), err)
	}
	if !backup.Usable() {
		return Selection{}, fmt.Errorf("audio.input %q is %s and fallback %q is %s: %w",
			primary.ID, primary.blocker(), backup.ID, backup.blocker(), speech.ErrPermissionDenied)
	}
	return Selection{
		Device:   backup,
		Warning:  fmt.Sprintf("audio.input %q is %s; using %q", primary.ID, primary.blocker(), backup.ID),
		Fallback: backup.ID != primary.ID,
	}, nil
}

// pick resolves one preference term. Exact ids beat id substrings, which
// beat description substrings; usable devices win ties.
func pick(devices []Device, term string) (Device, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" || term == "default" {
		idx := slices.IndexFunc(devices, func(d Device) bool { return d.Default })
		if idx < 0 {
			return Device{}, errors.New("default audio source is unavailable")
		}
		return devices[idx], nil
	}

	best, bestScore := -1, 0
	for i, device := range devices {
		score := matchScore(device, term)
		if score == 0 {
			continue
		}
		if device.Usable() {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Device{}, fmt.Errorf("%w: %q", ErrNoMatch, term)
	}
	return devices[best], nil
}

func matchScore(device Device, term string) int {
	id := strings.ToLower(device.ID)
	switch {
	case id == term:
		return 6
	case strings.Contains(id, term):
		return 4
	case strings.Contains(strings.ToLower(device.Description), term):
		return 2
	default:
		return 0
	}
}
