// Package config provides the configuration schema, loader, and validation
// for the Meetscribe transcription service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects where transcription runs.
type Mode string

const (
	// ModeLocal runs an in-process acoustic model.
	ModeLocal Mode = "local"

	// ModeRemote calls an HTTP speech-to-text endpoint.
	ModeRemote Mode = "remote"
)

// IsValid reports whether m is a recognised transcription mode.
func (m Mode) IsValid() bool {
	return m == ModeLocal || m == ModeRemote
}

// RemoteProvider selects the remote speech-to-text implementation.
type RemoteProvider string

const (
	RemoteWhisperServer RemoteProvider = "whisper-server"
	RemoteOpenAI        RemoteProvider = "openai"
)

// IsValid reports whether p is a recognised remote provider.
func (p RemoteProvider) IsValid() bool {
	return p == RemoteWhisperServer || p == RemoteOpenAI
}

// Config is the root configuration structure for Meetscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving the Prometheus /metrics
	// endpoint (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Session       SessionConfig       `yaml:"session"`

	// Sinks lists the HTTP endpoints that receive every transcription.
	// A URL may contain the literal "{session}", which is replaced with the
	// acquired session identifier.
	Sinks []string `yaml:"sinks"`
}

// AudioConfig describes the capture format and device.
type AudioConfig struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame duration in milliseconds; 10, 20 or 30.
	// Defaults to 30.
	FrameMs int `yaml:"frame_ms"`

	// Device selects the capture device: "default" or a zero-based index
	// into the enumerated capture devices. Defaults to "default".
	Device string `yaml:"device"`
}

// FrameDuration returns the frame duration as a time.Duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

// VADConfig tunes the voice activity classifier.
type VADConfig struct {
	// Aggressiveness is the discrete sensitivity level, 0 (most permissive)
	// to 3 (most aggressive). Defaults to 2.
	Aggressiveness int `yaml:"aggressiveness"`
}

// SegmenterConfig tunes utterance segmentation.
type SegmenterConfig struct {
	// SilenceThreshold is the trailing silence, in seconds, that finalizes
	// an active segment. Defaults to 0.6.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// MinSegment is the minimum accumulated speech duration, in seconds,
	// below which a finalized segment is discarded. Defaults to 0.5.
	MinSegment float64 `yaml:"min_segment"`
}

// SilenceThresholdDuration returns the silence threshold as a time.Duration.
func (s SegmenterConfig) SilenceThresholdDuration() time.Duration {
	return time.Duration(s.SilenceThreshold * float64(time.Second))
}

// MinSegmentDuration returns the minimum segment length as a time.Duration.
func (s SegmenterConfig) MinSegmentDuration() time.Duration {
	return time.Duration(s.MinSegment * float64(time.Second))
}

// TranscriptionConfig selects and configures the transcription backend.
// The backend is chosen once at startup and never switched at runtime.
type TranscriptionConfig struct {
	// Mode selects local or remote transcription. Defaults to "local".
	Mode Mode `yaml:"mode"`

	// Task selects "transcribe" (same language) or "translate".
	// Defaults to "transcribe".
	Task string `yaml:"task"`

	// ModelPath is the whisper.cpp model file used in local mode.
	ModelPath string `yaml:"model_path"`

	// Language is the spoken-language hint for the local model.
	Language string `yaml:"language"`

	// Remote configures the backend used in remote mode.
	Remote RemoteConfig `yaml:"remote"`
}

// RemoteConfig configures the remote speech-to-text call.
type RemoteConfig struct {
	// Provider selects the remote implementation. Defaults to
	// "whisper-server".
	Provider RemoteProvider `yaml:"provider"`

	// BaseURL is the whisper-server address or an OpenAI-compatible API
	// base URL override.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the OpenAI provider.
	APIKey string `yaml:"api_key"`

	// Model selects a provider-specific model (e.g., "whisper-1").
	Model string `yaml:"model"`
}

// PipelineConfig bounds the transcription worker pool.
type PipelineConfig struct {
	// Workers is the number of concurrent transcription workers.
	// Defaults to 2.
	Workers int `yaml:"workers"`

	// QueueSize bounds the segment hand-off queue. When full, the oldest
	// queued segment is dropped so capture never blocks. Defaults to 8.
	QueueSize int `yaml:"queue_size"`
}

// SessionConfig configures session acquisition.
type SessionConfig struct {
	// Endpoint is the session-provider URL POSTed to at startup.
	Endpoint string `yaml:"endpoint"`

	// RetryInterval is the fixed delay, in seconds, between failed
	// acquisition attempts. Defaults to 5.
	RetryInterval float64 `yaml:"retry_interval"`
}

// RetryIntervalDuration returns the retry interval as a time.Duration.
func (s SessionConfig) RetryIntervalDuration() time.Duration {
	return time.Duration(s.RetryInterval * float64(time.Second))
}
