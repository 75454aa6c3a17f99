package audio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/speech"
)

func testMicrophone(devices []Device, listErr error) *Microphone {
	mic := NewMicrophone(nil, "default", "default")
	mic.list = func(context.Context) ([]Device, error) {
		return devices, listErr
	}
	return mic
}

func TestMicrophoneAcquire(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		listErr error
		wantErr error
	}{
		{
			name:    "usable default",
			devices: []Device{{ID: "mic", Available: true, Default: true}},
		},
		{
			name:    "muted default is denied",
			devices: []Device{{ID: "mic", Available: true, Muted: true, Default: true}},
			wantErr: speech.ErrPermissionDenied,
		},
		{
			name:    "unplugged default is denied",
			devices: []Device{{ID: "mic", Available: false, Default: true}},
			wantErr: speech.ErrPermissionDenied,
		},
		{
			name:    "no devices is unsupported",
			wantErr: speech.ErrUnsupported,
		},
		{
			name:    "pulse unavailable is unsupported",
			listErr: errors.New("connect pulse server: refused"),
			wantErr: speech.ErrUnsupported,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mic := testMicrophone(tc.devices, tc.listErr)
			stream, err := mic.Acquire(context.Background())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.False(t, mic.Held())
				return
			}
			require.NoError(t, err)
			require.True(t, mic.Held())
			stream.Stop()
			stream.Stop()
			require.False(t, mic.Held())
		})
	}
}

func TestMicrophoneOpenUsesAcquiredDevice(t *testing.T) {
	mic := testMicrophone([]Device{
		{ID: "builtin", Available: true, Default: true},
		{ID: "usb-headset", Description: "USB Headset", Available: true},
	}, nil)
	mic.pref.Input = "headset"

	var started []string
	mic.start = func(_ context.Context, device Device) (*Capture, error) {
		started = append(started, device.ID)
		return newCapture(device, 1), nil
	}

	stream, err := mic.Acquire(context.Background())
	require.NoError(t, err)
	defer stream.Stop()

	mic.list = func(context.Context) ([]Device, error) {
		return nil, errors.New("must not list again")
	}
	source, err := mic.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, source.Stop())
	require.Equal(t, []string{"usb-headset"}, started)
}
