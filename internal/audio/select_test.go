package audio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/nexa/internal/speech"
)

var deskDevices = []Device{
	{ID: "alsa_input.pci-0000_00_1f.3.analog-stereo", Description: "Built-in Audio Analog Stereo", Available: true, Default: true},
	{ID: "alsa_input.usb-Elgato_Wave_3-00.mono-fallback", Description: "Elgato Wave 3 Mono", Available: true},
	{ID: "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor", Description: "Monitor of Built-in Audio", Available: true},
	{ID: "bluez_input.sony", Description: "Sony WH-1000XM6", Available: false},
}

func withDevice(devices []Device, id string, edit func(*Device)) []Device {
	out := append([]Device(nil), devices...)
	for i := range out {
		if out[i].ID == id {
			edit(&out[i])
		}
	}
	return out
}

func TestPreferenceResolve(t *testing.T) {
	builtin := deskDevices[0].ID
	elgato := deskDevices[1].ID

	tests := []struct {
		name         string
		devices      []Device
		pref         Preference
		wantID       string
		wantFallback bool
		wantWarning  string
		wantErr      error
		wantErrText  string
	}{
		{name: "default source", devices: deskDevices, pref: Preference{Input: "default"}, wantID: builtin},
		{name: "blank means default", devices: deskDevices, pref: Preference{}, wantID: builtin},
		{name: "description match", devices: deskDevices, pref: Preference{Input: "Wave 3"}, wantID: elgato},
		{name: "exact id", devices: deskDevices, pref: Preference{Input: builtin}, wantID: builtin},
		{
			name:         "muted input falls back to default",
			devices:      withDevice(deskDevices, elgato, func(d *Device) { d.Muted = true }),
			pref:         Preference{Input: "elgato", Fallback: "default"},
			wantID:       builtin,
			wantFallback: true,
			wantWarning:  "is muted",
		},
		{
			name:         "unplugged input falls back to named device",
			devices:      deskDevices,
			pref:         Preference{Input: "sony", Fallback: "elgato"},
			wantID:       elgato,
			wantFallback: true,
			wantWarning:  "is unplugged",
		},
		{
			name:    "monitor fallback is denied",
			devices: withDevice(deskDevices, builtin, func(d *Device) { d.Muted = true }),
			pref:    Preference{Input: "default", Fallback: "monitor"},
			wantErr: speech.ErrPermissionDenied,
		},
		{
			name:    "muted default without fallback is denied",
			devices: withDevice(deskDevices, builtin, func(d *Device) { d.Muted = true }),
			pref:    Preference{Input: "default", Fallback: "default"},
			wantErr: speech.ErrPermissionDenied,
		},
		{name: "unknown input", devices: deskDevices, pref: Preference{Input: "yeti"}, wantErr: ErrNoMatch},
		{
			name:        "unknown fallback",
			devices:     deskDevices,
			pref:        Preference{Input: "sony", Fallback: "yeti"},
			wantErr:     ErrNoMatch,
			wantErrText: "audio.fallback",
		},
		{name: "no devices", pref: Preference{Input: "default"}, wantErr: ErrNoDevices},
		{
			name:        "no default source",
			devices:     []Device{{ID: "mic", Available: true}},
			pref:        Preference{Input: "default"},
			wantErrText: "default audio source is unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selection, err := tc.pref.Resolve(tc.devices)
			if tc.wantErr != nil || tc.wantErrText != "" {
				require.Error(t, err)
				if tc.wantErr != nil {
					require.ErrorIs(t, err, tc.wantErr)
				}
				require.Contains(t, err.Error(), tc.wantErrText)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, selection.Device.ID)
			require.Equal(t, tc.wantFallback, selection.Fallback)
			if tc.wantWarning == "" {
				require.Empty(t, selection.Warning)
			} else {
				require.Contains(t, selection.Warning, tc.wantWarning)
			}
		})
	}
}

func TestPickPrefersUsableAmongEqualMatches(t *testing.T) {
	devices := []Device{
		{ID: "usb-headset-a", Description: "USB Headset", Available: true, Muted: true},
		{ID: "usb-headset-b", Description: "USB Headset", Available: true},
	}

	got, err := pick(devices, "headset")
	require.NoError(t, err)
	require.Equal(t, "usb-headset-b", got.ID)
}

func TestDeviceUsable(t *testing.T) {
	require.True(t, Device{Available: true}.Usable())
	require.False(t, Device{Available: true, Muted: true}.Usable())
	require.False(t, Device{Available: true, Monitor: true}.Usable())
	require.False(t, Device{}.Usable())
	require.Equal(t, "an output monitor", Device{Monitor: true}.blocker())
}
