// Package whisper provides a local stt.Backend backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all concurrent
// Transcribe calls; each call runs in a fresh whisper context because
// contexts are not thread-safe.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/meetscribe/meetscribe/pkg/provider/stt"
)

const defaultLanguage = "en"

// Compile-time assertion that Backend satisfies stt.Backend.
var _ stt.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithLanguage sets the spoken-language hint passed to the model
// (e.g., "en", "de", "auto"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(b *Backend) { b.language = lang }
}

// Backend implements stt.Backend using in-process whisper.cpp inference.
type Backend struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call
// Close when the backend is no longer needed.
func New(modelPath string, opts ...Option) (*Backend, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	b := &Backend{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Close releases the whisper model.
func (b *Backend) Close() error {
	if b.model != nil {
		return b.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference on the utterance and returns the
// concatenation of the model's text segments in temporal order, trimmed.
// The whisper context created per call is freed on every exit path.
func (b *Backend) Transcribe(ctx context.Context, samples []int16, task stt.Task) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context cancelled: %w", err)
	}

	// Each inference uses a fresh context. Contexts are NOT thread-safe but
	// the model can be shared across goroutines.
	wctx, err := b.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(b.language); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", b.language, "error", err)
	}
	wctx.SetTranslate(task == stt.TaskTranslate)

	if err := wctx.Process(pcmToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// pcmToFloat32 converts signed 16-bit PCM samples to float32 normalised to
// [-1.0, 1.0], the input layout whisper.cpp expects.
func pcmToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
