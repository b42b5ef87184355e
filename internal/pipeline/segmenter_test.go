package pipeline_test

import (
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/pipeline"
	"github.com/meetscribe/meetscribe/pkg/audio"
)

const (
	testFrameDuration = 30 * time.Millisecond
	testSampleRate    = 16000
)

// fakeClock drives the segmenter's silence timing deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// frameOf builds one 30 ms frame filled with the given amplitude.
func frameOf(amplitude int16) audio.Frame {
	samples := make([]int16, testSampleRate*30/1000)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples}
}

func newTestSegmenter(clock *fakeClock) *pipeline.Segmenter {
	return pipeline.NewSegmenter(pipeline.SegmenterConfig{
		SilenceThreshold: 600 * time.Millisecond,
		MinDuration:      500 * time.Millisecond,
		FrameDuration:    testFrameDuration,
		Now:              clock.now,
	})
}

// feed pushes a run of identical frames, advancing the clock one frame
// duration per push, and collects whatever the segmenter emits.
func feed(s *pipeline.Segmenter, clock *fakeClock, speech bool, n int) (segs []*pipeline.Segment, discards int) {
	amplitude := int16(0)
	if speech {
		amplitude = 2000
	}
	for i := 0; i < n; i++ {
		clock.advance(testFrameDuration)
		seg, discarded := s.Push(frameOf(amplitude), speech)
		if seg != nil {
			segs = append(segs, seg)
		}
		if discarded {
			discards++
		}
	}
	return segs, discards
}

func TestSegmenterScriptedSequence(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSegmenter(clock)

	var segs []*pipeline.Segment
	for _, run := range []struct {
		speech bool
		n      int
	}{
		{false, 40},
		{true, 30},
		{false, 60},
	} {
		got, discards := feed(s, clock, run.speech, run.n)
		segs = append(segs, got...)
		if discards != 0 {
			t.Fatalf("unexpected discards: %d", discards)
		}
	}

	if len(segs) != 1 {
		t.Fatalf("expected exactly 1 segment, got %d", len(segs))
	}
	seg := segs[0]
	if seg.Frames != 30 {
		t.Errorf("segment frames = %d, want 30", seg.Frames)
	}
	wantSamples := 30 * testSampleRate * 30 / 1000
	if len(seg.Samples) != wantSamples {
		t.Errorf("segment samples = %d, want %d", len(seg.Samples), wantSamples)
	}
	if seg.Duration != 900*time.Millisecond {
		t.Errorf("segment duration = %v, want 900ms", seg.Duration)
	}
	if seg.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", seg.Sequence)
	}
	if s.Active() {
		t.Error("segmenter should be idle after finalization")
	}
}

func TestSegmenterDiscardsShortSegments(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSegmenter(clock)

	// 5 frames of speech = 150 ms, below the 500 ms minimum.
	segs, discards := feed(s, clock, true, 5)
	if len(segs) != 0 || discards != 0 {
		t.Fatalf("speech run emitted early: segs=%d discards=%d", len(segs), discards)
	}
	segs, discards = feed(s, clock, false, 60)
	if len(segs) != 0 {
		t.Fatalf("short segment was emitted instead of discarded")
	}
	if discards != 1 {
		t.Fatalf("discards = %d, want 1", discards)
	}
}

func TestSegmenterBridgesInteriorSilence(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSegmenter(clock)

	// 150 ms of interior silence is inside the 600 ms grace window, so the
	// two speech runs fuse into one segment that excludes the silence.
	feed(s, clock, true, 10)
	if segs, _ := feed(s, clock, false, 5); len(segs) != 0 {
		t.Fatal("segment finalized inside the grace window")
	}
	if !s.Active() {
		t.Fatal("segment should still be active inside the grace window")
	}
	feed(s, clock, true, 10)
	segs, _ := feed(s, clock, false, 30)

	if len(segs) != 1 {
		t.Fatalf("expected 1 fused segment, got %d", len(segs))
	}
	if segs[0].Frames != 20 {
		t.Errorf("fused segment frames = %d, want 20 (silence must not be retained)", segs[0].Frames)
	}
}

func TestSegmenterSequenceIncreases(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSegmenter(clock)

	var seqs []uint64
	for i := 0; i < 3; i++ {
		feed(s, clock, true, 20)
		segs, _ := feed(s, clock, false, 30)
		if len(segs) != 1 {
			t.Fatalf("round %d: expected 1 segment, got %d", i, len(segs))
		}
		seqs = append(seqs, segs[0].Sequence)
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Errorf("sequence[%d] = %d, want %d", i, seq, i+1)
		}
	}
}

func TestSegmenterIgnoresSilenceWhenIdle(t *testing.T) {
	clock := &fakeClock{}
	s := newTestSegmenter(clock)

	segs, discards := feed(s, clock, false, 100)
	if len(segs) != 0 || discards != 0 || s.Active() {
		t.Fatalf("idle silence produced activity: segs=%d discards=%d active=%v",
			len(segs), discards, s.Active())
	}
}
