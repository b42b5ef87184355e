package pipeline

import (
	"time"

	"github.com/meetscribe/meetscribe/pkg/audio"
)

// Segment is one finalized utterance: the concatenation of the
// speech-classified frames accumulated between speech onset and the silence
// timeout. It is immutable after finalization.
type Segment struct {
	// Samples is the concatenated mono PCM of the retained speech frames.
	// Interior silence frames inside the grace window are never included.
	Samples []int16

	// Sequence increases monotonically per finalized segment, so consumers
	// can restore temporal order across out-of-order deliveries.
	Sequence uint64

	// Frames is the number of speech frames retained.
	Frames int

	// Duration is Frames × the frame duration.
	Duration time.Duration
}

// Segmenter is the state machine that groups speech frames into segments.
//
// It has two states: idle (no active segment) and active (accumulating
// speech, tracking the time of the last speech frame). Silence frames
// within the grace window keep a segment active but are not retained; once
// trailing silence exceeds the threshold the segment is finalized and the
// machine returns to idle. Segments shorter than the minimum duration are
// discarded.
//
// The Segmenter performs no I/O and is not safe for concurrent use; it is
// driven solely by the capture loop.
type Segmenter struct {
	silenceThreshold time.Duration
	minDuration      time.Duration
	frameDuration    time.Duration

	// now is injectable so tests can drive the silence clock directly.
	now func() time.Time

	active     bool
	lastSpeech time.Time
	samples    []int16
	frames     int
	sequence   uint64
}

// SegmenterConfig configures a [Segmenter].
type SegmenterConfig struct {
	// SilenceThreshold is the trailing silence that finalizes a segment.
	SilenceThreshold time.Duration

	// MinDuration is the minimum accumulated speech below which a finalized
	// segment is discarded.
	MinDuration time.Duration

	// FrameDuration is the fixed duration of one frame.
	FrameDuration time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NewSegmenter creates a Segmenter in the idle state.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Segmenter{
		silenceThreshold: cfg.SilenceThreshold,
		minDuration:      cfg.MinDuration,
		frameDuration:    cfg.FrameDuration,
		now:              now,
	}
}

// Active reports whether a segment is currently accumulating.
func (s *Segmenter) Active() bool { return s.active }

// Push feeds one classified frame into the state machine. When a segment is
// finalized it is returned with discarded=false; when a finalized segment
// falls below the minimum duration, Push returns (nil, true). In all other
// cases it returns (nil, false).
//
// The returned Segment owns its sample buffer exclusively: the Segmenter
// starts the next accumulation in a fresh buffer, so the caller may hand
// the segment to another goroutine without copying.
func (s *Segmenter) Push(frame audio.Frame, speech bool) (seg *Segment, discarded bool) {
	if speech {
		if !s.active {
			s.active = true
			s.samples = make([]int16, 0, len(frame.Samples)*16)
		}
		s.lastSpeech = s.now()
		s.samples = append(s.samples, frame.Samples...)
		s.frames++
		return nil, false
	}

	// Silence frame.
	if !s.active {
		return nil, false
	}
	if s.now().Sub(s.lastSpeech) <= s.silenceThreshold {
		// Within the grace window: the segment stays active but the silence
		// frame is not retained.
		return nil, false
	}
	return s.finalize()
}

// finalize closes the active segment, resets the machine to idle, and
// applies the minimum-duration filter.
func (s *Segmenter) finalize() (*Segment, bool) {
	samples := s.samples
	frames := s.frames
	s.samples = nil
	s.frames = 0
	s.active = false

	duration := time.Duration(frames) * s.frameDuration
	if duration < s.minDuration {
		return nil, true
	}

	s.sequence++
	return &Segment{
		Samples:  samples,
		Sequence: s.sequence,
		Frames:   frames,
		Duration: duration,
	}, false
}
