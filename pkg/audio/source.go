package audio

import "errors"

// ErrDeviceClosed is returned by [Source.NextFrame] once the underlying
// capture device has stopped or been closed. The capture loop treats any
// source error as fatal; there is no automatic device re-acquisition.
var ErrDeviceClosed = errors.New("audio: capture device closed")

// Source produces fixed-size audio frames from an input device. A Source is
// the exclusive owner of the underlying device handle and supports exactly
// one reader.
type Source interface {
	// NextFrame blocks until one frame's worth of samples is available and
	// returns it. The returned frame is owned by the caller. Returns an error
	// wrapping [ErrDeviceClosed] when the device becomes unavailable.
	NextFrame() (Frame, error)

	// Close stops the device and releases it. NextFrame calls in flight or
	// after Close return an error. Calling Close more than once is safe.
	Close() error
}
