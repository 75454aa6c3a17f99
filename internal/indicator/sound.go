package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/nexa/internal/config"
)

type cue string

const (
	cueStart    cue = "start"
	cueComplete cue = "complete"
	cueCancel   cue = "cancel"
)

const (
	cueSampleRate = 16000
	noteGap       = 22 * time.Millisecond
	fadeDuration  = 5 * time.Millisecond
)

// note is one pitch in scientific notation, e.g. "C#6".
type note struct {
	pitch string
	hold  time.Duration
	gain  float64
}

var melodies = map[cue][]note{
	cueStart:    {{"E5", 60 * time.Millisecond, 0.16}, {"B5", 80 * time.Millisecond, 0.16}},
	cueComplete: {{"G5", 60 * time.Millisecond, 0.16}, {"C6", 60 * time.Millisecond, 0.16}, {"E6", 90 * time.Millisecond, 0.16}},
	cueCancel:   {{"A4", 90 * time.Millisecond, 0.18}, {"E4", 120 * time.Millisecond, 0.18}},
}

var renderedCues = sync.OnceValue(func() map[cue][]int16 {
	out := make(map[cue][]int16, len(melodies))
	for name, melody := range melodies {
		out[name] = renderMelody(melody)
	}
	return out
})

// cuePlayers are tried in order for configured cue files.
var cuePlayers = [][]string{
	{"pw-play", "--media-role", "Notification"},
	{"paplay", "--property=media.role=event"},
}

var errNoCuePlayer = errors.New("no cue player found in PATH")

// emitCue plays the configured cue file, or the built-in melody when the
// file is unset or cannot be played.
func emitCue(c cue, cfg config.IndicatorConfig) error {
	if path := cueFile(c, cfg); path != "" {
		if err := playCueFile(path); err == nil {
			return nil
		}
	}
	pcm := renderedCues()[c]
	if len(pcm) == 0 {
		return nil
	}
	return playPCM(pcm)
}

func cueFile(c cue, cfg config.IndicatorConfig) string {
	switch c {
	case cueStart:
		return expandPath(cfg.SoundStartFile)
	case cueComplete:
		return expandPath(cfg.SoundCompleteFile)
	case cueCancel:
		return expandPath(cfg.SoundCancelFile)
	default:
		return ""
	}
}

// expandPath resolves a leading "~" and $VAR references.
func expandPath(raw string) string {
	raw = os.ExpandEnv(strings.TrimSpace(raw))
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

func playCueFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cue file: %w", err)
	}
	argv, err := cuePlayer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %q: %w (%s)", argv[0], path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func cuePlayer() ([]string, error) {
	for _, argv := range cuePlayers {
		if _, err := exec.LookPath(argv[0]); err == nil {
			return argv, nil
		}
	}
	return nil, errNoCuePlayer
}

// playPCM plays mono 16 kHz samples through the Pulse server and waits for
// the stream to drain.
func playPCM(pcm []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("nexa"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := pcm
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("nexa cue"),
	)
	if err != nil {
		return fmt.Errorf("open cue playback: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("cue playback: %w", err)
	}
	return nil
}

// noteFrequency converts scientific pitch notation to Hz using equal
// temperament tuned to A4 = 440 Hz.
func noteFrequency(pitch string) (float64, error) {
	semitones := map[byte]int{'C': -9, 'D': -7, 'E': -5, 'F': -4, 'G': -2, 'A': 0, 'B': 2}
	if len(pitch) < 2 {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}
	offset, ok := semitones[pitch[0]]
	if !ok {
		return 0, fmt.Errorf("invalid pitch %q", pitch)
	}
	rest := pitch[1:]
	switch rest[0] {
	case '#':
		offset++
		rest = rest[1:]
	case 'b':
		offset--
		rest = rest[1:]
	}
	if len(rest) != 1 || rest[0] < '0' || rest[0] > '8' {
		return 0, fmt.Errorf("invalid octave in pitch %q", pitch)
	}
	offset += (int(rest[0]-'0') - 4) * 12
	return 440 * math.Pow(2, float64(offset)/12), nil
}

// renderMelody concatenates notes separated by short silences. Notes with an
// unknown pitch are skipped.
func renderMelody(melody []note) []int16 {
	gap := make([]int16, sampleCount(noteGap))
	var pcm []int16
	for _, n := range melody {
		freq, err := noteFrequency(n.pitch)
		if err != nil {
			continue
		}
		if len(pcm) > 0 {
			pcm = append(pcm, gap...)
		}
		pcm = append(pcm, renderTone(freq, n.hold, n.gain)...)
	}
	return pcm
}

// renderTone synthesizes a sine with raised-cosine fades at both ends.
func renderTone(freq float64, hold time.Duration, gain float64) []int16 {
	n := sampleCount(hold)
	if n == 0 || freq <= 0 || gain <= 0 {
		return nil
	}
	fade := min(sampleCount(fadeDuration), n/2)

	pcm := make([]int16, n)
	for i := range pcm {
		edge := min(i, n-1-i)
		envelope := 1.0
		if edge < fade {
			envelope = 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(fade))
		}
		phase := 2 * math.Pi * freq * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * gain * envelope * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
