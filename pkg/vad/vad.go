// Package vad provides per-frame voice activity classification.
//
// A [Classifier] is a pure function of a single frame: it keeps no
// cross-frame state and never fails. The pipeline uses it for a binary
// speech / not-speech decision only; smoothing across frames is the
// segmenter's job.
package vad

import (
	"fmt"
	"math"

	"github.com/meetscribe/meetscribe/pkg/audio"
)

// Classifier decides whether a single audio frame contains speech.
type Classifier interface {
	// IsSpeech reports whether the frame is classified as speech. It must be
	// stateless and must not block.
	IsSpeech(frame audio.Frame) bool
}

// MinAggressiveness and MaxAggressiveness bound the discrete sensitivity
// levels accepted by [NewEnergy]. Higher levels classify fewer frames as
// speech.
const (
	MinAggressiveness = 0
	MaxAggressiveness = 3
)

// rmsThresholds maps an aggressiveness level to the minimum root-mean-square
// energy (in 16-bit PCM units, max 32767) a frame needs to count as speech.
// Level 1 matches the near-silence floor commonly used for 16 kHz mono
// speech; the surrounding levels halve or double it.
var rmsThresholds = [MaxAggressiveness + 1]float64{150, 300, 600, 1200}

// Compile-time assertion that Energy satisfies Classifier.
var _ Classifier = (*Energy)(nil)

// Energy is an RMS-energy classifier with discrete aggressiveness levels.
// It is stateless and safe for concurrent use.
type Energy struct {
	threshold float64
}

// NewEnergy creates an energy classifier for the given aggressiveness level
// (0 = most permissive, 3 = most aggressive).
func NewEnergy(aggressiveness int) (*Energy, error) {
	if aggressiveness < MinAggressiveness || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("vad: aggressiveness %d out of range [%d, %d]", aggressiveness, MinAggressiveness, MaxAggressiveness)
	}
	return &Energy{threshold: rmsThresholds[aggressiveness]}, nil
}

// IsSpeech reports whether the frame's RMS energy exceeds the classifier's
// threshold.
func (e *Energy) IsSpeech(frame audio.Frame) bool {
	return rms(frame.Samples) >= e.threshold
}

// rms returns the root-mean-square energy of a 16-bit PCM sample buffer.
// Returns 0 for an empty buffer.
func rms(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
