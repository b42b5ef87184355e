package whisperserver_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"mime"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/meetscribe/meetscribe/pkg/audio"
	"github.com/meetscribe/meetscribe/pkg/provider/stt"
	"github.com/meetscribe/meetscribe/pkg/provider/stt/whisperserver"
)

// newMockServer creates a test server that responds to POST /inference with
// a JSON body containing responseText. Each matched request increments
// *callCount and the handler remembers the last parsed form in *gotForm.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32, gotForm *map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			http.Error(w, "want multipart", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if gotForm != nil {
			form := make(map[string]string)
			for key, values := range r.MultipartForm.Value {
				if len(values) > 0 {
					form[key] = values[0]
				}
			}
			*gotForm = form
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// makeSpeechSamples generates a 440 Hz sine utterance of n samples.
func makeSpeechSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return samples
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisperserver.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsServerText(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, "  hello world ", &calls, nil)
	defer srv.Close()

	b, err := whisperserver.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := b.Transcribe(context.Background(), makeSpeechSamples(16000), stt.TaskTranscribe)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q (trimmed)", text, "hello world")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestTranscribe_SendsTranslateField(t *testing.T) {
	t.Parallel()
	var form map[string]string
	srv := newMockServer(t, "bonjour", nil, &form)
	defer srv.Close()

	b, err := whisperserver.New(srv.URL, whisperserver.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := b.Transcribe(context.Background(), makeSpeechSamples(4800), stt.TaskTranslate); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if form["translate"] != "true" {
		t.Errorf("translate field = %q, want %q", form["translate"], "true")
	}
	if form["model"] != "base.en" {
		t.Errorf("model field = %q, want %q", form["model"], "base.en")
	}
}

func TestTranscribe_UploadsDecodableWAV(t *testing.T) {
	t.Parallel()
	samples := makeSpeechSamples(4800)

	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		uploaded, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	b, err := whisperserver.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Transcribe(context.Background(), samples, stt.TaskTranscribe); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	decoded, rate, err := audio.DecodeWAV(uploaded)
	if err != nil {
		t.Fatalf("uploaded payload is not valid WAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("wav sample rate = %d, want 16000", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("wav carries %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestTranscribe_ServerErrorIsReturned(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := whisperserver.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Transcribe(context.Background(), makeSpeechSamples(480), stt.TaskTranscribe); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestTranscribe_UnreachableServerIsReturned(t *testing.T) {
	t.Parallel()
	b, err := whisperserver.New("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.Transcribe(context.Background(), makeSpeechSamples(480), stt.TaskTranscribe); err == nil {
		t.Fatal("expected error for unreachable server, got nil")
	}
}
