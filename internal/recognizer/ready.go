package recognizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// Probe dials endpoint and waits until the connection is ready or ctx ends.
func Probe(ctx context.Context, endpoint string, opts ...grpc.DialOption) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("recognizer endpoint is empty")
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return fmt.Errorf("dial recognizer grpc %q: %w", endpoint, err)
	}
	defer func() { _ = conn.Close() }()

	conn.Connect()
	return waitForReady(ctx, conn)
}

// waitForReady blocks until conn is Ready. A connection that has failed to
// connect once is reported immediately instead of retrying until ctx ends.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for state := conn.GetState(); ; state = conn.GetState() {
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure:
			return errors.New("recognizer unreachable")
		case connectivity.Shutdown:
			return errors.New("recognizer connection closed")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("recognizer still %s: %w", strings.ToLower(state.String()), ctx.Err())
		}
	}
}
