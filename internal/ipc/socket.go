package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning reports a live daemon already owning the socket.
var ErrAlreadyRunning = errors.New("nexa daemon already running")

const socketName = "nexa.sock"

// RuntimeSocketPath returns NEXA_SOCKET when set, otherwise
// $XDG_RUNTIME_DIR/nexa.sock.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv("NEXA_SOCKET")); override != "" {
		return filepath.Clean(override), nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// AcquireOptions tunes stale-socket recovery.
type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket.
	ProbeTimeout time.Duration
	// Retries is the number of extra bind attempts after removing a stale socket.
	Retries int
	// Rescue runs after a stale socket is removed.
	Rescue func(context.Context) error
}

// DefaultAcquireOptions returns the daemon's stock recovery policy.
func DefaultAcquireOptions() AcquireOptions {
	return AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8}
}

// Acquire binds the control socket for a new daemon. A socket answered by a
// live daemon yields ErrAlreadyRunning; a dead one is unlinked and rebound.
// An inconclusive probe leaves the socket in place.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultAcquireOptions().ProbeTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		if opts.Rescue != nil {
			_ = opts.Rescue(ctx)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
}
