// Package effects applies executed voice commands to the desktop: opening
// application routes, running system commands, and speaking responses.
package effects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rbright/nexa/internal/config"
)

// stderrLimit caps how much of a failed command's stderr ends up in its error.
const stderrLimit = 512

// runArgv runs argv with input on stdin and waits for it to exit. A failure
// carries the tail of the command's stderr.
func runArgv(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := tail(strings.TrimSpace(stderr.String()), stderrLimit); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// expandArgv substitutes target for every {url} placeholder, appending it
// when argv has none.
func expandArgv(argv []string, target string) []string {
	out := make([]string, 0, len(argv)+1)
	replaced := false
	for _, arg := range argv {
		if strings.Contains(arg, config.PlaceholderURL) {
			arg = strings.ReplaceAll(arg, config.PlaceholderURL, target)
			replaced = true
		}
		out = append(out, arg)
	}
	if !replaced {
		out = append(out, target)
	}
	return out
}
