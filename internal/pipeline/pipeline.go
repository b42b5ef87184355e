// Package pipeline wires the capture path together: frames are read from an
// [audio.Source], classified by a [vad.Classifier], grouped into segments by
// the [Segmenter], transcribed by a worker pool and finally handed to the
// [dispatch.Dispatcher].
//
// The capture loop never blocks on downstream work. Finalized segments go
// into a bounded queue; when the queue is full the oldest waiting segment is
// dropped so the freshest audio always gets through.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/meetscribe/meetscribe/internal/dispatch"
	"github.com/meetscribe/meetscribe/internal/observe"
	"github.com/meetscribe/meetscribe/internal/session"
	"github.com/meetscribe/meetscribe/pkg/audio"
	"github.com/meetscribe/meetscribe/pkg/provider/stt"
	"github.com/meetscribe/meetscribe/pkg/vad"
)

// defaultDrainTimeout bounds how long Run waits for in-flight
// transcriptions after the capture loop has stopped.
const defaultDrainTimeout = 10 * time.Second

// Config holds the fully constructed dependencies of a [Pipeline].
type Config struct {
	Source     audio.Source
	Classifier vad.Classifier
	Segmenter  *Segmenter
	Backend    stt.Backend
	Dispatcher *dispatch.Dispatcher

	// BackendName labels transcription latency metrics, e.g. "whisper".
	BackendName string

	// Task is passed through to every backend call.
	Task stt.Task

	// SessionID is attached to every dispatched result.
	SessionID session.ID

	// Workers is the number of concurrent transcription workers. Zero means
	// one.
	Workers int

	// QueueSize bounds the segment queue. Zero means one slot.
	QueueSize int

	// DrainTimeout bounds the shutdown drain. Zero means a sensible default.
	DrainTimeout time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Pipeline runs the capture loop and the transcription worker pool.
type Pipeline struct {
	source      audio.Source
	classifier  vad.Classifier
	segmenter   *Segmenter
	backend     stt.Backend
	dispatcher  *dispatch.Dispatcher
	backendName string
	task        stt.Task
	sessionID   session.ID

	workers      int
	queue        chan *Segment
	drainTimeout time.Duration

	logger  *slog.Logger
	metrics *observe.Metrics
}

// New assembles a Pipeline from already-constructed components.
func New(cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		source:       cfg.Source,
		classifier:   cfg.Classifier,
		segmenter:    cfg.Segmenter,
		backend:      cfg.Backend,
		dispatcher:   cfg.Dispatcher,
		backendName:  cfg.BackendName,
		task:         cfg.Task,
		sessionID:    cfg.SessionID,
		workers:      workers,
		queue:        make(chan *Segment, queueSize),
		drainTimeout: drain,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run drives the pipeline until ctx is cancelled or the capture source
// fails. Cancelling ctx closes the source, which unblocks the capture loop;
// queued and in-flight segments are then drained, bounded by the drain
// timeout.
func (p *Pipeline) Run(ctx context.Context) error {
	// Workers keep draining after ctx is cancelled; cancelWork is the hard
	// stop once the drain timeout elapses.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(workCtx)
		}()
	}

	stop := context.AfterFunc(ctx, func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("closing capture source", "error", err)
		}
	})
	defer stop()

	err := p.captureLoop(ctx)

	close(p.queue)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		p.logger.Warn("drain timeout elapsed, abandoning in-flight transcriptions")
		cancelWork()
		<-done
	}
	return err
}

// captureLoop reads frames until the source closes or fails. It performs no
// blocking work per frame beyond the source read itself.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	for {
		frame, err := p.source.NextFrame()
		if err != nil {
			if errors.Is(err, audio.ErrDeviceClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline: reading frame: %w", err)
		}
		p.metrics.FramesCaptured.Add(ctx, 1)

		speech := p.classifier.IsSpeech(frame)
		seg, discarded := p.segmenter.Push(frame, speech)
		if discarded {
			p.metrics.SegmentsDiscarded.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "too_short")))
			p.logger.Debug("segment below minimum duration, discarding")
			continue
		}
		if seg == nil {
			continue
		}
		p.metrics.SegmentsFinalized.Add(ctx, 1)
		p.logger.Debug("segment finalized",
			"sequence", seg.Sequence, "frames", seg.Frames, "duration", seg.Duration)
		p.enqueue(ctx, seg)
	}
}

// enqueue places a segment on the worker queue without ever blocking the
// capture loop: when the queue is full, the oldest waiting segment is
// dropped to make room.
func (p *Pipeline) enqueue(ctx context.Context, seg *Segment) {
	for {
		select {
		case p.queue <- seg:
			p.metrics.QueueDepth.Add(ctx, 1)
			return
		default:
		}
		// A worker may have freed a slot since the failed send; retry the
		// send before sacrificing a queued segment.
		if len(p.queue) < cap(p.queue) {
			continue
		}
		select {
		case dropped := <-p.queue:
			p.metrics.QueueDepth.Add(ctx, -1)
			p.metrics.SegmentsDiscarded.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", "queue_full")))
			p.logger.Warn("transcription queue full, dropping oldest segment",
				"sequence", dropped.Sequence)
		default:
			// A worker took a segment between the two selects; retry.
		}
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	for seg := range p.queue {
		p.metrics.QueueDepth.Add(ctx, -1)
		p.process(ctx, seg)
	}
}

// process transcribes one segment and dispatches the result. Backend
// failures and empty transcriptions end the segment's life here; they never
// reach the sinks.
func (p *Pipeline) process(ctx context.Context, seg *Segment) {
	ctx, span := observe.Tracer().Start(ctx, "pipeline.transcribe",
		trace.WithAttributes(
			attribute.Int64("segment.sequence", int64(seg.Sequence)),
			attribute.Int("segment.frames", seg.Frames),
		))
	defer span.End()

	start := time.Now()
	text, err := p.backend.Transcribe(ctx, seg.Samples, p.task)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.TranscriptionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("backend", p.backendName),
			attribute.String("status", status),
		))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		p.metrics.EmptyTranscriptions.Add(ctx, 1)
		p.logger.Error("transcription failed",
			"sequence", seg.Sequence, "duration", seg.Duration, "error", err)
		return
	}
	if strings.TrimSpace(text) == "" {
		p.metrics.EmptyTranscriptions.Add(ctx, 1)
		p.logger.Debug("transcription produced no text", "sequence", seg.Sequence)
		return
	}

	p.logger.Info("segment transcribed",
		"sequence", seg.Sequence,
		"audio_duration", seg.Duration,
		"latency", elapsed,
		"chars", len(text))
	p.dispatcher.Dispatch(ctx, dispatch.Result{
		Text:      text,
		SessionID: p.sessionID,
		Sequence:  seg.Sequence,
	})
}
