package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = "/org/freedesktop/Notifications"
	notifyIface = "org.freedesktop.Notifications"
)

// urgency is the freedesktop "urgency" hint.
type urgency byte

const (
	urgencyLow urgency = iota
	urgencyNormal
	urgencyCritical
)

// notification is one Notify call. A non-zero replaceID updates the bubble
// in place.
type notification struct {
	appName   string
	replaceID uint32
	icon      string
	summary   string
	urgency   urgency
	timeoutMS int
}

// busctlArgs encodes the call for signature susssasa{sv}i.
func (n notification) busctlArgs() []string {
	return []string{
		n.appName,
		strconv.FormatUint(uint64(n.replaceID), 10),
		n.icon,
		n.summary,
		"",
		"0",
		"1", "urgency", "y", strconv.Itoa(int(n.urgency)),
		strconv.Itoa(n.timeoutMS),
	}
}

// desktopNotify sends n over the session bus and returns the server's id.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	out, err := busctl(ctx, "Notify", "susssasa{sv}i", n.busctlArgs()...)
	if err != nil {
		return 0, fmt.Errorf("notify: %w", err)
	}
	return parseNotifyID(out)
}

func desktopDismiss(ctx context.Context, id uint32) error {
	if _, err := busctl(ctx, "CloseNotification", "u", strconv.FormatUint(uint64(id), 10)); err != nil {
		return fmt.Errorf("close notification %d: %w", id, err)
	}
	return nil
}

func busctl(ctx context.Context, method, signature string, args ...string) (string, error) {
	argv := append([]string{"--user", "call", notifyDest, notifyPath, notifyIface, method, signature}, args...)
	out, err := exec.CommandContext(ctx, "busctl", argv...).CombinedOutput()
	reply := strings.TrimSpace(string(out))
	switch {
	case err == nil:
		return reply, nil
	case reply == "":
		return "", err
	default:
		return "", fmt.Errorf("%w: %s", err, reply)
	}
}

// parseNotifyID reads the "u <id>" reply printed by busctl.
func parseNotifyID(reply string) (uint32, error) {
	kind, value, ok := strings.Cut(reply, " ")
	if !ok || kind != "u" {
		return 0, fmt.Errorf("unexpected Notify reply %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("notification id %q: %w", value, err)
	}
	return uint32(id), nil
}
