// Package dispatch fans transcription results out to downstream sinks.
//
// Delivery is best-effort and at-most-once per sink per result: every sink
// gets one independent POST, failures are logged and counted but never
// retried, and no sink can affect another or the caller. No ordering is
// guaranteed across sinks or across results.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/meetscribe/meetscribe/internal/observe"
	"github.com/meetscribe/meetscribe/internal/session"
)

// sessionPlaceholder in a sink URL is replaced with the session identifier,
// matching providers that scope their transcription endpoint per meeting
// (e.g., POST /meeting/{id}/transcription).
const sessionPlaceholder = "{session}"

// Result is one transcription ready for delivery.
type Result struct {
	// Text is the transcribed speech. Never empty for a dispatched result.
	Text string

	// SessionID is the identifier acquired at startup.
	SessionID session.ID

	// Sequence is the segment's monotonically increasing sequence number,
	// for consumers that need temporal order across out-of-order deliveries.
	Sequence uint64
}

// payload is the JSON body POSTed to each sink.
type payload struct {
	Transcription string `json:"transcription"`
}

// Dispatcher delivers results to a fixed set of sink endpoints.
// It is safe for concurrent use.
type Dispatcher struct {
	sinks      []string
	httpClient *http.Client
	metrics    *observe.Metrics
}

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the default HTTP client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithMetrics overrides the default metrics instance; used by tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher for the given sink URLs. An empty sink list is
// valid: Dispatch becomes a no-op.
func New(sinks []string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:      append([]string(nil), sinks...),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Dispatch POSTs the result to every sink concurrently and waits for all
// attempts to finish. Results with empty text are never dispatched. Dispatch
// itself never returns an error: per-sink failures are logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, result Result) {
	if strings.TrimSpace(result.Text) == "" {
		return
	}

	body, err := json.Marshal(payload{Transcription: result.Text})
	if err != nil {
		// Marshalling a string field cannot realistically fail; log and drop.
		slog.Error("dispatch: marshal payload", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		endpoint := strings.ReplaceAll(sink, sessionPlaceholder, string(result.SessionID))
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, endpoint, body, result.Sequence)
		}()
	}
	wg.Wait()
}

// deliver performs one POST to one sink. Status and body of the response
// are ignored except for failure logging.
func (d *Dispatcher) deliver(ctx context.Context, endpoint string, body []byte, sequence uint64) {
	status := "ok"
	if err := d.post(ctx, endpoint, body); err != nil {
		status = "error"
		slog.Warn("dispatch failed", "sink", endpoint, "sequence", sequence, "error", err)
	}
	d.metrics.DispatchRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

func (d *Dispatcher) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned HTTP %d", resp.StatusCode)
	}
	return nil
}
