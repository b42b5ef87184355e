// Package miniaudio provides an [audio.Source] backed by the miniaudio
// library via the malgo bindings. It owns the capture device handle
// exclusively and re-frames the driver's arbitrary-size callback chunks
// into the exact frame boundaries the pipeline expects.
package miniaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/meetscribe/meetscribe/pkg/audio"
)

// DefaultDevice selects the system default capture device.
const DefaultDevice = "default"

// Compile-time assertion that Capture satisfies audio.Source.
var _ audio.Source = (*Capture)(nil)

// Capture is a microphone-backed audio.Source. It is safe for a single
// reader; NextFrame must not be called concurrently.
type Capture struct {
	format audio.Format

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	// frames carries complete frames from the driver callback to NextFrame.
	// The callback never blocks: when the reader falls behind, the oldest
	// frame is dropped.
	frames chan audio.Frame

	// pending accumulates callback samples until a full frame is available.
	// Accessed only from the malgo data callback goroutine.
	pending []int16

	elapsed time.Duration

	// done is closed exactly once, by stop. Close and the driver's stop
	// callback can race when the hardware disappears during shutdown.
	done     chan struct{}
	stopOnce sync.Once

	closeOnce sync.Once
	closeErr  error
}

// Open initialises the capture device described by selector ("default" or a
// zero-based index into the enumerated capture devices) and starts
// capturing. The returned Capture is ready for NextFrame immediately.
func Open(format audio.Format, selector string) (*Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}

	c := &Capture{
		format:  format,
		ctx:     ctx,
		frames:  make(chan audio.Frame, 32),
		pending: make([]int16, 0, format.SamplesPerFrame()),
		done:    make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(format.SampleRate)

	if selector != "" && selector != DefaultDevice {
		id, err := resolveDeviceID(ctx, selector)
		if err != nil {
			cleanupContext(ctx)
			return nil, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onStop,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		cleanupContext(ctx)
		return nil, fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	c.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		cleanupContext(ctx)
		return nil, fmt.Errorf("miniaudio: start capture device: %w", err)
	}

	return c, nil
}

// NextFrame blocks until one full frame of samples has been captured.
// Returns an error wrapping [audio.ErrDeviceClosed] once the device has
// stopped or Close has been called.
func (c *Capture) NextFrame() (audio.Frame, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return audio.Frame{}, fmt.Errorf("miniaudio: %w", audio.ErrDeviceClosed)
		}
		return frame, nil
	case <-c.done:
		// Drain any frame raced in before the device stopped.
		select {
		case frame := <-c.frames:
			return frame, nil
		default:
			return audio.Frame{}, fmt.Errorf("miniaudio: %w", audio.ErrDeviceClosed)
		}
	}
}

// Close stops the capture device and releases the miniaudio context.
// Safe to call more than once.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		if err := c.device.Stop(); err != nil {
			c.closeErr = fmt.Errorf("miniaudio: stop device: %w", err)
		}
		c.device.Uninit()
		if err := cleanupContext(c.ctx); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// onData is invoked by malgo on the driver thread with raw s16le bytes.
// It must never block.
func (c *Capture) onData(_, input []byte, frameCount uint32) {
	_ = frameCount
	samplesPerFrame := c.format.SamplesPerFrame()

	for i := 0; i+1 < len(input); i += 2 {
		c.pending = append(c.pending, int16(binary.LittleEndian.Uint16(input[i:i+2])))
		if len(c.pending) < samplesPerFrame {
			continue
		}

		frame := audio.Frame{
			Samples:   append([]int16(nil), c.pending...),
			Timestamp: c.elapsed,
		}
		c.pending = c.pending[:0]
		c.elapsed += c.format.FrameDuration

		select {
		case c.frames <- frame:
		default:
			// Reader fell behind: drop the oldest buffered frame to keep
			// capture latency bounded rather than stalling the driver.
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			default:
			}
		}
	}
}

// stop signals NextFrame that no more frames are coming. Safe to call from
// Close and the driver callbacks concurrently.
func (c *Capture) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// onStop is invoked by malgo when the device stops for any reason,
// including the hardware disappearing.
func (c *Capture) onStop() {
	c.stop()
}

// resolveDeviceID maps a numeric selector onto the enumerated capture
// devices.
func resolveDeviceID(ctx *malgo.AllocatedContext, selector string) (*malgo.DeviceID, error) {
	index, err := strconv.Atoi(selector)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: device selector %q is neither %q nor an index", selector, DefaultDevice)
	}
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("miniaudio: enumerate capture devices: %w", err)
	}
	if index < 0 || index >= len(infos) {
		return nil, fmt.Errorf("miniaudio: device index %d out of range (have %d capture devices)", index, len(infos))
	}
	id := infos[index].ID
	return &id, nil
}

func cleanupContext(ctx *malgo.AllocatedContext) error {
	var errs []error
	if err := ctx.Uninit(); err != nil {
		errs = append(errs, fmt.Errorf("miniaudio: uninit context: %w", err))
	}
	ctx.Free()
	return errors.Join(errs...)
}
