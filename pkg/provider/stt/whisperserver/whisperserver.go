// Package whisperserver provides a remote stt.Backend that talks to a
// running whisper-server binary (the whisper.cpp REST front end, which
// exposes POST /inference). Each utterance is encoded as an in-memory WAV
// buffer and submitted as one multipart inference request.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/meetscribe/meetscribe/pkg/audio"
	"github.com/meetscribe/meetscribe/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Compile-time assertion that Backend satisfies stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en"). When empty the server uses whichever model it was started
// with — this is the default.
func WithModel(model string) Option {
	return func(b *Backend) { b.model = model }
}

// WithSampleRate sets the sample rate (Hz) the WAV envelope declares. Must
// match the PCM handed to Transcribe. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(b *Backend) { b.sampleRate = rate }
}

// WithHTTPClient overrides the default HTTP client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(b *Backend) { b.httpClient = c }
}

// Backend implements stt.Backend against a whisper-server endpoint.
// It is safe for concurrent use.
type Backend struct {
	serverURL  string
	model      string
	sampleRate int
	httpClient *http.Client
}

// New creates a Backend that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Backend, error) {
	if serverURL == "" {
		return nil, errors.New("whisperserver: serverURL must not be empty")
	}
	b := &Backend{
		serverURL:  strings.TrimRight(serverURL, "/"),
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Transcribe WAV-encodes the utterance in memory, POSTs it to /inference as
// multipart/form-data, and returns the text field of the JSON response.
// Failures are returned to the caller; the backend never retries.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, task stt.Task) (string, error) {
	wav := audio.EncodeWAV(samples, b.sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisperserver: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisperserver: write wav data: %w", err)
	}
	if b.model != "" {
		if err := mw.WriteField("model", b.model); err != nil {
			return "", fmt.Errorf("whisperserver: write model field: %w", err)
		}
	}
	if task == stt.TaskTranslate {
		if err := mw.WriteField("translate", "true"); err != nil {
			return "", fmt.Errorf("whisperserver: write translate field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisperserver: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisperserver: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperserver: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisperserver: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisperserver: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisperserver: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
