package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meetscribe/meetscribe/pkg/provider/stt"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = 30
	}
	if cfg.Audio.Device == "" {
		cfg.Audio.Device = "default"
	}
	if cfg.Segmenter.SilenceThreshold == 0 {
		cfg.Segmenter.SilenceThreshold = 0.6
	}
	if cfg.Segmenter.MinSegment == 0 {
		cfg.Segmenter.MinSegment = 0.5
	}
	if cfg.Transcription.Mode == "" {
		cfg.Transcription.Mode = ModeLocal
	}
	if cfg.Transcription.Task == "" {
		cfg.Transcription.Task = string(stt.TaskTranscribe)
	}
	if cfg.Transcription.Remote.Provider == "" {
		cfg.Transcription.Remote.Provider = RemoteWhisperServer
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 2
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 8
	}
	if cfg.Session.RetryInterval == 0 {
		cfg.Session.RetryInterval = 5
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	switch cfg.Audio.FrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", cfg.Audio.FrameMs))
	}

	// VAD
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
	}

	// Segmenter
	if cfg.Segmenter.SilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("segmenter.silence_threshold must be positive, got %g", cfg.Segmenter.SilenceThreshold))
	}
	if cfg.Segmenter.MinSegment < 0 {
		errs = append(errs, fmt.Errorf("segmenter.min_segment must not be negative, got %g", cfg.Segmenter.MinSegment))
	}

	// Transcription
	if !cfg.Transcription.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("transcription.mode %q is invalid; valid values: local, remote", cfg.Transcription.Mode))
	}
	if !stt.Task(cfg.Transcription.Task).IsValid() {
		errs = append(errs, fmt.Errorf("transcription.task %q is invalid; valid values: transcribe, translate", cfg.Transcription.Task))
	}
	if cfg.Transcription.Mode == ModeLocal && cfg.Transcription.ModelPath == "" {
		errs = append(errs, errors.New("transcription.model_path is required when transcription.mode is local"))
	}
	if cfg.Transcription.Mode == ModeRemote {
		if !cfg.Transcription.Remote.Provider.IsValid() {
			errs = append(errs, fmt.Errorf("transcription.remote.provider %q is invalid; valid values: whisper-server, openai", cfg.Transcription.Remote.Provider))
		}
		if cfg.Transcription.Remote.Provider == RemoteWhisperServer && cfg.Transcription.Remote.BaseURL == "" {
			errs = append(errs, errors.New("transcription.remote.base_url is required for the whisper-server provider"))
		}
		if cfg.Transcription.Remote.Provider == RemoteOpenAI && cfg.Transcription.Remote.APIKey == "" {
			errs = append(errs, errors.New("transcription.remote.api_key is required for the openai provider"))
		}
	}

	// Pipeline
	if cfg.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be positive, got %d", cfg.Pipeline.QueueSize))
	}

	// Session
	if cfg.Session.Endpoint == "" {
		errs = append(errs, errors.New("session.endpoint is required"))
	} else if _, err := url.ParseRequestURI(cfg.Session.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("session.endpoint %q is not a valid URL: %v", cfg.Session.Endpoint, err))
	}
	if cfg.Session.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.retry_interval must be positive, got %g", cfg.Session.RetryInterval))
	}

	// Sinks
	for i, sink := range cfg.Sinks {
		if _, err := url.ParseRequestURI(sink); err != nil {
			errs = append(errs, fmt.Errorf("sinks[%d] %q is not a valid URL: %v", i, sink, err))
		}
	}

	return errors.Join(errs...)
}
