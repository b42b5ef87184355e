package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meetscribe/meetscribe/pkg/provider/stt"
	"github.com/meetscribe/meetscribe/pkg/provider/stt/openai"
)

func TestNew_EmptyAPIKey_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

// newAudioServer fakes the OpenAI audio endpoints, recording which path was
// hit last.
func newAudioServer(t *testing.T, text string, lastPath *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") && !strings.HasSuffix(r.URL.Path, "/audio/translations") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		*lastPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
}

func TestTranscribe_UsesTranscriptionsEndpoint(t *testing.T) {
	t.Parallel()
	var path string
	srv := newAudioServer(t, " hello ", &path)
	defer srv.Close()

	b, err := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := b.Transcribe(context.Background(), make([]int16, 1600), stt.TaskTranscribe)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello" {
		t.Errorf("text = %q, want %q (trimmed)", text, "hello")
	}
	if !strings.HasSuffix(path, "/audio/transcriptions") {
		t.Errorf("request path = %q, want transcriptions endpoint", path)
	}
}

func TestTranscribe_TranslateUsesTranslationsEndpoint(t *testing.T) {
	t.Parallel()
	var path string
	srv := newAudioServer(t, "hello", &path)
	defer srv.Close()

	b, err := openai.New("test-key", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := b.Transcribe(context.Background(), make([]int16, 1600), stt.TaskTranslate); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.HasSuffix(path, "/audio/translations") {
		t.Errorf("request path = %q, want translations endpoint", path)
	}
}
