package observe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the application tracer from the global OTel tracer
// provider. Spans are recorded around the transcription and dispatch stages
// of each worker.
func Tracer() trace.Tracer {
	return otel.Tracer(meterName)
}
