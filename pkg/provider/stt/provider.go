// Package stt defines the Backend interface for batch speech-to-text
// transcription.
//
// A Backend maps one finalized utterance — a buffer of mono 16-bit PCM
// samples — to its text. Implementations are selected once at startup and
// never switched at runtime; the pipeline treats a failed or empty
// transcription as "no speech recognised" rather than an error worth
// surfacing.
//
// Implementations must be safe for concurrent use: multiple pipeline
// workers may transcribe overlapping utterances simultaneously.
package stt

import "context"

// Task selects what the acoustic model does with the audio.
type Task string

const (
	// TaskTranscribe produces text in the spoken language.
	TaskTranscribe Task = "transcribe"

	// TaskTranslate produces text translated to the model's target language
	// (English for Whisper-family models).
	TaskTranslate Task = "translate"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

// Backend is the abstraction over any batch speech-to-text engine, local or
// remote.
type Backend interface {
	// Transcribe converts one utterance of mono 16-bit PCM samples (at the
	// sample rate the backend was constructed with) into text. An empty
	// string with a nil error is a valid "no speech recognised" outcome.
	Transcribe(ctx context.Context, samples []int16, task Task) (string, error)
}
