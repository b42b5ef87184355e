// Package audio defines the frame types, format description, and capture
// interface shared by the Meetscribe pipeline.
//
// The atomic unit of transport is the [Frame]: a fixed-duration slice of
// mono 16-bit PCM samples produced by a [Source]. Frames are immutable once
// produced; ownership transfers from the source to the pipeline.
package audio

import (
	"fmt"
	"time"
)

// BitsPerSample is fixed at 16 for the signed little-endian PCM used
// throughout the pipeline.
const BitsPerSample = 16

// Format describes the fixed audio format of a capture stream. All frames
// produced under one Format carry exactly SamplesPerFrame samples.
type Format struct {
	// SampleRate in Hz (e.g., 16000 for STT-optimised mono).
	SampleRate int

	// FrameDuration is the fixed time slice covered by one frame.
	// Voice-activity detectors generally accept 10, 20, or 30 ms.
	FrameDuration time.Duration
}

// SamplesPerFrame returns the number of PCM samples in a single frame.
func (f Format) SamplesPerFrame() int {
	return int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
}

// Validate checks that the format is usable by the pipeline.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	switch f.FrameDuration {
	case 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond:
		return nil
	default:
		return fmt.Errorf("audio: frame duration must be 10ms, 20ms or 30ms, got %s", f.FrameDuration)
	}
}

// Frame is a single fixed-duration slice of mono 16-bit PCM audio.
// The Samples slice must not be mutated after the frame is produced.
type Frame struct {
	// Samples holds signed 16-bit PCM values at the stream's sample rate.
	Samples []int16

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the frame's play time at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(f.Samples)) * int64(time.Second) / int64(sampleRate))
}
