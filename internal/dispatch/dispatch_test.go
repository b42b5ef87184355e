package dispatch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/meetscribe/meetscribe/internal/dispatch"
	"github.com/meetscribe/meetscribe/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// recordingSink returns a test server that records the last JSON body it
// received and counts requests.
func recordingSink(t *testing.T, calls *atomic.Int32, lastBody *atomic.Pointer[map[string]string]) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		if err := json.Unmarshal(data, &body); err == nil {
			lastBody.Store(&body)
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestDispatch_DeliversToAllSinks(t *testing.T) {
	t.Parallel()
	var callsA, callsB atomic.Int32
	var bodyA, bodyB atomic.Pointer[map[string]string]
	sinkA := recordingSink(t, &callsA, &bodyA)
	defer sinkA.Close()
	sinkB := recordingSink(t, &callsB, &bodyB)
	defer sinkB.Close()

	d := dispatch.New([]string{sinkA.URL, sinkB.URL}, dispatch.WithMetrics(testMetrics(t)))
	d.Dispatch(context.Background(), dispatch.Result{Text: "hello", SessionID: "s1"})

	if callsA.Load() != 1 || callsB.Load() != 1 {
		t.Fatalf("sink calls = %d/%d, want 1/1", callsA.Load(), callsB.Load())
	}
	got := *bodyA.Load()
	if got["transcription"] != "hello" {
		t.Errorf(`payload = %v, want {"transcription": "hello"}`, got)
	}
}

func TestDispatch_UnreachableSinkDoesNotAffectOthers(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var body atomic.Pointer[map[string]string]
	reachable := recordingSink(t, &calls, &body)
	defer reachable.Close()

	d := dispatch.New(
		[]string{"http://127.0.0.1:1/unreachable", reachable.URL},
		dispatch.WithMetrics(testMetrics(t)),
	)
	// Must not panic or return an error; the reachable sink still receives
	// the payload.
	d.Dispatch(context.Background(), dispatch.Result{Text: "still delivered", SessionID: "s1"})

	if calls.Load() != 1 {
		t.Fatalf("reachable sink calls = %d, want 1", calls.Load())
	}
	if got := *body.Load(); got["transcription"] != "still delivered" {
		t.Errorf("payload = %v", got)
	}
}

func TestDispatch_EmptyTextIsNeverDispatched(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var body atomic.Pointer[map[string]string]
	sink := recordingSink(t, &calls, &body)
	defer sink.Close()

	d := dispatch.New([]string{sink.URL}, dispatch.WithMetrics(testMetrics(t)))
	d.Dispatch(context.Background(), dispatch.Result{Text: "", SessionID: "s1"})
	d.Dispatch(context.Background(), dispatch.Result{Text: "   ", SessionID: "s1"})

	if calls.Load() != 0 {
		t.Errorf("sink calls = %d, want 0 for empty results", calls.Load())
	}
}

func TestDispatch_ExpandsSessionPlaceholder(t *testing.T) {
	t.Parallel()
	var gotPath atomic.Pointer[string]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		gotPath.Store(&p)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := dispatch.New(
		[]string{srv.URL + "/meeting/{session}/transcription"},
		dispatch.WithMetrics(testMetrics(t)),
	)
	d.Dispatch(context.Background(), dispatch.Result{Text: "hi", SessionID: "abc-123"})

	if got := *gotPath.Load(); got != "/meeting/abc-123/transcription" {
		t.Errorf("request path = %q, want /meeting/abc-123/transcription", got)
	}
}

func TestDispatch_NoSinksIsNoop(t *testing.T) {
	t.Parallel()
	d := dispatch.New(nil, dispatch.WithMetrics(testMetrics(t)))
	d.Dispatch(context.Background(), dispatch.Result{Text: "nowhere to go", SessionID: "s1"})
}
