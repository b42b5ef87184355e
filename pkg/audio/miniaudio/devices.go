package miniaudio

import (
	"fmt"
	"io"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one audio device visible to the host backend.
type DeviceInfo struct {
	Index     int
	Name      string
	IsDefault bool
}

// ListDevices enumerates the capture and playback devices of the host
// backend. It opens a short-lived miniaudio context of its own and does not
// interfere with an active [Capture].
func ListDevices() (capture, playback []DeviceInfo, err error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	defer cleanupContext(ctx)

	capture, err = enumerate(ctx, malgo.Capture)
	if err != nil {
		return nil, nil, err
	}
	playback, err = enumerate(ctx, malgo.Playback)
	if err != nil {
		return nil, nil, err
	}
	return capture, playback, nil
}

// PrintDevices writes a human-readable device listing to w, in the order
// the indices are accepted by the device selector.
func PrintDevices(w io.Writer) error {
	capture, playback, err := ListDevices()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Capture devices:")
	for _, d := range capture {
		printDevice(w, d)
	}
	fmt.Fprintln(w, "Playback devices:")
	for _, d := range playback {
		printDevice(w, d)
	}
	return nil
}

func printDevice(w io.Writer, d DeviceInfo) {
	marker := ""
	if d.IsDefault {
		marker = " (default)"
	}
	fmt.Fprintf(w, "  %3d: %s%s\n", d.Index, d.Name, marker)
}

func enumerate(ctx *malgo.AllocatedContext, kind malgo.DeviceType) ([]DeviceInfo, error) {
	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: enumerate devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}
