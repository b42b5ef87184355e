// Package openai provides a remote stt.Backend backed by the OpenAI audio
// API. The transcribe task maps to the transcriptions endpoint and the
// translate task to the translations endpoint; both receive the utterance
// as an in-memory WAV buffer.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/meetscribe/meetscribe/pkg/audio"
	"github.com/meetscribe/meetscribe/pkg/provider/stt"
)

const (
	defaultModel      = "whisper-1"
	defaultSampleRate = 16000
)

// Compile-time assertion that Backend satisfies stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// config holds optional configuration for the backend.
type config struct {
	baseURL    string
	model      string
	sampleRate int
	timeout    time.Duration
}

// Option is a functional option for Backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the audio model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithSampleRate sets the sample rate (Hz) the WAV envelope declares.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Backend implements stt.Backend using the OpenAI audio API.
// It is safe for concurrent use.
type Backend struct {
	client     oai.Client
	model      string
	sampleRate int
}

// New constructs an OpenAI audio Backend.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, sampleRate: defaultSampleRate}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Backend{
		client:     oai.NewClient(reqOpts...),
		model:      cfg.model,
		sampleRate: cfg.sampleRate,
	}, nil
}

// Transcribe WAV-encodes the utterance in memory and submits it to the
// OpenAI transcriptions or translations endpoint depending on task.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, task stt.Task) (string, error) {
	wav := audio.EncodeWAV(samples, b.sampleRate)
	file := oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav")

	if task == stt.TaskTranslate {
		resp, err := b.client.Audio.Translations.New(ctx, oai.AudioTranslationNewParams{
			File:  file,
			Model: oai.AudioModel(b.model),
		})
		if err != nil {
			return "", fmt.Errorf("openai: translation request: %w", err)
		}
		return strings.TrimSpace(resp.Text), nil
	}

	resp, err := b.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:  file,
		Model: oai.AudioModel(b.model),
	})
	if err != nil {
		return "", fmt.Errorf("openai: transcription request: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
