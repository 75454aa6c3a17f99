package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/nexa/internal/executor"
	"github.com/rbright/nexa/internal/ipc"
	"github.com/rbright/nexa/internal/session"
)

const (
	forwardTimeout = 220 * time.Millisecond
	// sendTimeout covers one full interpret and execute pass in the daemon.
	sendTimeout = 10 * time.Second
)

var errDaemonNotRunning = errors.New("nexa daemon is not running (start it with \"nexa run\")")

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		return r.fail(err)
	}

	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

// formatStatus renders "<phase> enabled=<bool>" plus the last command and
// response when the daemon reports them.
func formatStatus(resp ipc.Response) string {
	phase := resp.State
	if phase == "" {
		phase = "idle"
	}
	var state session.State
	if len(resp.Data) == 0 || json.Unmarshal(resp.Data, &state) != nil {
		return phase
	}

	line := fmt.Sprintf("%s enabled=%t", phase, state.Enabled)
	if state.Command != "" {
		line += fmt.Sprintf(" command=%q", state.Command)
	}
	if state.Response != "" {
		line += fmt.Sprintf(" response=%q", state.Response)
	}
	if state.Error != "" {
		line += fmt.Sprintf(" error=%q", state.Error)
	}
	return line
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: command}, forwardTimeout)
	if !handled {
		return r.fail(errDaemonNotRunning)
	}
	if err != nil {
		return r.fail(err)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandSend prints the outcome message; a failed outcome exits 1.
func (r Runner) commandSend(ctx context.Context, text string, confidence float64) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}

	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: ipc.CommandSend, Text: text, Confidence: confidence}, sendTimeout)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return r.fail(errDaemonNotRunning)
		}
		return r.fail(fmt.Errorf("forward command %q: %w", ipc.CommandSend, err))
	}
	if resp.Error != "" {
		return r.fail(errors.New(resp.Error))
	}

	var outcome executor.Outcome
	if len(resp.Data) > 0 && json.Unmarshal(resp.Data, &outcome) == nil && outcome.Message != "" {
		resp.Message = outcome.Message
	}
	if resp.OK {
		fmt.Fprintln(r.Stdout, resp.Message)
		return 0
	}
	fmt.Fprintf(r.Stderr, "error: %s\n", resp.Message)
	return 1
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
