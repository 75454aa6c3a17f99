package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/config"
)

type fakeDesktop struct {
	mu        sync.Mutex
	nextID    uint32
	shown     []notification
	dismissed []uint32
	cues      []cue
	err       error
}

func (f *fakeDesktop) install(n *Notifier) {
	n.notify = func(_ context.Context, note notification) (uint32, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.err != nil {
			return 0, f.err
		}
		f.shown = append(f.shown, note)
		if note.replaceID != 0 {
			return note.replaceID, nil
		}
		f.nextID++
		return f.nextID, nil
	}
	n.dismiss = func(_ context.Context, id uint32) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dismissed = append(f.dismissed, id)
		return nil
	}
	n.play = func(c cue) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cues = append(f.cues, c)
		return nil
	}
}

func TestNotifierReplacesNotificationAcrossStates(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.TextListening = "Listening"
	cfg.TextProcessing = "Working"
	cfg.TextError = "Voice error"

	n := NewNotifier(cfg, nil)
	desktop := &fakeDesktop{}
	desktop.install(n)

	ctx := context.Background()
	n.ShowListening(ctx)
	n.ShowProcessing(ctx)
	n.ShowError(ctx, "")
	n.Hide(ctx)
	n.Hide(ctx)

	require.Equal(t, []notification{
		{appName: "nexa", icon: "audio-input-microphone", summary: "Listening", urgency: urgencyNormal, timeoutMS: stickyTimeoutMS},
		{appName: "nexa", replaceID: 1, icon: "system-run", summary: "Working", urgency: urgencyLow, timeoutMS: stickyTimeoutMS},
		{appName: "nexa", replaceID: 1, icon: "dialog-error", summary: "Voice error", urgency: urgencyCritical, timeoutMS: 1600},
	}, desktop.shown)
	require.Equal(t, []uint32{1}, desktop.dismissed)
}

func TestNotifierShowErrorUsesProvidedTextAndDefaultTimeout(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	n := NewNotifier(cfg, nil)
	desktop := &fakeDesktop{}
	desktop.install(n)

	n.ShowError(context.Background(), "Microphone access denied")
	require.Len(t, desktop.shown, 1)
	require.Equal(t, "Microphone access denied", desktop.shown[0].summary)
	require.Equal(t, defaultErrorTimeoutMS, desktop.shown[0].timeoutMS)
}

func TestNotifierDisabledSkipsNotifications(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false

	n := NewNotifier(cfg, nil)
	desktop := &fakeDesktop{}
	desktop.install(n)

	ctx := context.Background()
	n.ShowListening(ctx)
	n.ShowProcessing(ctx)
	n.ShowError(ctx, "ignored")
	n.Hide(ctx)
	n.CueStart(ctx)
	n.Wait()

	require.Empty(t, desktop.shown)
	require.Empty(t, desktop.dismissed)
	require.Empty(t, desktop.cues)
}

func TestNotifierFailedNotifyKeepsNoID(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	n := NewNotifier(cfg, nil)
	desktop := &fakeDesktop{err: errors.New("no session bus")}
	desktop.install(n)

	n.ShowListening(context.Background())
	n.Hide(context.Background())
	require.Empty(t, desktop.dismissed)
}

func TestNotifierPlaysCuesInOrder(t *testing.T) {
	cfg := config.Default().Indicator
	cfg.Enable = false

	n := NewNotifier(cfg, nil)
	desktop := &fakeDesktop{}
	desktop.install(n)

	ctx := context.Background()
	n.CueStart(ctx)
	n.Wait()
	n.CueComplete(ctx)
	n.Wait()
	n.CueCancel(ctx)
	n.Wait()

	require.Equal(t, []cue{cueStart, cueComplete, cueCancel}, desktop.cues)
}

func TestDesktopNotifyViaBusctl(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
if [[ "${6:-}" == "Notify" ]]; then
  echo 'u 17'
fi
`)

	id, err := desktopNotify(context.Background(), notification{
		appName:   "nexa",
		icon:      "audio-input-microphone",
		summary:   "Listening",
		urgency:   urgencyNormal,
		timeoutMS: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(17), id)
	require.NoError(t, desktopDismiss(context.Background(), id))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Notify susssasa{sv}i nexa 0 audio-input-microphone Listening")
	require.True(t, strings.HasSuffix(lines[0], " 0 1 urgency y 1 5000"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], "CloseNotification u 17"), lines[1])
}

func TestDesktopNotifyReportsFailure(t *testing.T) {
	installBusctlStub(t, `
echo "Failed to connect to bus" >&2
exit 1
`)

	_, err := desktopNotify(context.Background(), notification{appName: "nexa", summary: "Listening"})
	require.ErrorContains(t, err, "Failed to connect to bus")
}

func TestParseNotifyID(t *testing.T) {
	id, err := parseNotifyID("u 42")
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)

	_, err = parseNotifyID("s nope")
	require.ErrorContains(t, err, "unexpected Notify reply")

	_, err = parseNotifyID("u -1")
	require.ErrorContains(t, err, "notification id")
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
