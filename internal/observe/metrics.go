// Package observe provides observability primitives for Meetscribe:
// OpenTelemetry metrics and traces with a Prometheus exporter bridge so the
// standard /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all Meetscribe
// metrics.
const meterName = "github.com/meetscribe/meetscribe"

// Metrics holds all OpenTelemetry metric instruments for the pipeline.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesCaptured counts frames read from the capture device.
	FramesCaptured metric.Int64Counter

	// SegmentsFinalized counts segments handed off for transcription.
	SegmentsFinalized metric.Int64Counter

	// SegmentsDiscarded counts segments dropped before transcription.
	// Use with attribute.String("reason", "too_short"|"queue_full").
	SegmentsDiscarded metric.Int64Counter

	// TranscriptionDuration tracks backend transcription latency. Use with:
	//   attribute.String("backend", ...), attribute.String("status", "ok"|"error")
	TranscriptionDuration metric.Float64Histogram

	// EmptyTranscriptions counts transcriptions that produced no text
	// (including recovered backend failures).
	EmptyTranscriptions metric.Int64Counter

	// DispatchRequests counts per-sink delivery attempts. Use with:
	//   attribute.String("status", "ok"|"error")
	DispatchRequests metric.Int64Counter

	// QueueDepth tracks the number of segments waiting for a worker.
	QueueDepth metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// batch speech-to-text latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("meetscribe.frames.captured",
		metric.WithDescription("Frames read from the capture device."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsFinalized, err = m.Int64Counter("meetscribe.segments.finalized",
		metric.WithDescription("Segments handed off for transcription."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("meetscribe.segments.discarded",
		metric.WithDescription("Segments dropped before transcription."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("meetscribe.transcription.duration",
		metric.WithDescription("Latency of backend transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmptyTranscriptions, err = m.Int64Counter("meetscribe.transcriptions.empty",
		metric.WithDescription("Transcriptions that produced no text."),
	); err != nil {
		return nil, err
	}
	if met.DispatchRequests, err = m.Int64Counter("meetscribe.dispatch.requests",
		metric.WithDescription("Per-sink delivery attempts."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("meetscribe.queue.depth",
		metric.WithDescription("Segments waiting for a transcription worker."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance built from the
// global OTel meter provider. The first call creates the instruments;
// creation errors fall back to the no-op meter and are intentionally
// swallowed so callers can record unconditionally.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
