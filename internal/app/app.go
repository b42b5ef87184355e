// Package app wires all Meetscribe subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run acquires a session and drives the capture pipeline, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithBackend, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meetscribe/meetscribe/internal/config"
	"github.com/meetscribe/meetscribe/internal/dispatch"
	"github.com/meetscribe/meetscribe/internal/observe"
	"github.com/meetscribe/meetscribe/internal/pipeline"
	"github.com/meetscribe/meetscribe/internal/session"
	"github.com/meetscribe/meetscribe/pkg/audio"
	"github.com/meetscribe/meetscribe/pkg/audio/miniaudio"
	"github.com/meetscribe/meetscribe/pkg/provider/stt"
	"github.com/meetscribe/meetscribe/pkg/provider/stt/openai"
	"github.com/meetscribe/meetscribe/pkg/provider/stt/whisper"
	"github.com/meetscribe/meetscribe/pkg/provider/stt/whisperserver"
	"github.com/meetscribe/meetscribe/pkg/vad"
)

// metricsShutdownTimeout bounds the graceful stop of the metrics server.
const metricsShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and orchestrates the capture pipeline.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New (or injected), torn down in Shutdown.
	source      audio.Source
	classifier  vad.Classifier
	backend     stt.Backend
	backendName string
	coordinator *session.Coordinator
	dispatcher  *dispatch.Dispatcher
	metrics     *observe.Metrics
	logger      *slog.Logger

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a capture source instead of opening a hardware device.
// Injecting a source also skips the "open device only after the session is
// acquired" deferral, which only matters for real hardware.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithBackend injects a transcription backend instead of creating one from
// config. The name labels latency metrics.
func WithBackend(name string, b stt.Backend) Option {
	return func(a *App) {
		a.backend = b
		a.backendName = name
	}
}

// WithCoordinator injects a session coordinator instead of creating one from
// config.
func WithCoordinator(c *session.Coordinator) Option {
	return func(a *App) { a.coordinator = c }
}

// WithDispatcher injects a dispatcher instead of creating one from config.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(a *App) { a.dispatcher = d }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics overrides the process-wide metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together from cfg. Use Option
// functions to inject test doubles for any subsystem.
//
// The capture device itself is not opened here: hardware capture must not
// start before a session is acquired, so Run opens it.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.classifier == nil {
		classifier, err := vad.NewEnergy(cfg.VAD.Aggressiveness)
		if err != nil {
			return nil, fmt.Errorf("app: init classifier: %w", err)
		}
		a.classifier = classifier
	}

	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	if a.coordinator == nil {
		coordinator, err := session.NewCoordinator(cfg.Session.Endpoint,
			session.WithPolicy(session.Policy{Interval: cfg.Session.RetryIntervalDuration()}))
		if err != nil {
			return nil, fmt.Errorf("app: init session coordinator: %w", err)
		}
		a.coordinator = coordinator
	}

	if a.dispatcher == nil {
		a.dispatcher = dispatch.New(cfg.Sinks, dispatch.WithMetrics(a.metrics))
	}

	return a, nil
}

// initBackend constructs the configured transcription backend. The choice is
// made once here and never switched at runtime.
func (a *App) initBackend() error {
	if a.backend != nil {
		return nil
	}
	tc := a.cfg.Transcription

	switch tc.Mode {
	case config.ModeLocal:
		var opts []whisper.Option
		if tc.Language != "" {
			opts = append(opts, whisper.WithLanguage(tc.Language))
		}
		backend, err := whisper.New(tc.ModelPath, opts...)
		if err != nil {
			return fmt.Errorf("load whisper model %q: %w", tc.ModelPath, err)
		}
		a.backend = backend
		a.backendName = "whisper"
		a.closers = append(a.closers, backend.Close)
		a.logger.Info("transcription backend ready", "backend", a.backendName, "model", tc.ModelPath)
		return nil

	case config.ModeRemote:
		switch tc.Remote.Provider {
		case config.RemoteWhisperServer:
			opts := []whisperserver.Option{whisperserver.WithSampleRate(a.cfg.Audio.SampleRate)}
			if tc.Remote.Model != "" {
				opts = append(opts, whisperserver.WithModel(tc.Remote.Model))
			}
			backend, err := whisperserver.New(tc.Remote.BaseURL, opts...)
			if err != nil {
				return fmt.Errorf("configure whisper-server backend: %w", err)
			}
			a.backend = backend
			a.backendName = "whisper-server"

		case config.RemoteOpenAI:
			opts := []openai.Option{openai.WithSampleRate(a.cfg.Audio.SampleRate)}
			if tc.Remote.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(tc.Remote.BaseURL))
			}
			if tc.Remote.Model != "" {
				opts = append(opts, openai.WithModel(tc.Remote.Model))
			}
			backend, err := openai.New(tc.Remote.APIKey, opts...)
			if err != nil {
				return fmt.Errorf("configure openai backend: %w", err)
			}
			a.backend = backend
			a.backendName = "openai"

		default:
			return fmt.Errorf("unknown remote provider %q", tc.Remote.Provider)
		}
		a.logger.Info("transcription backend ready", "backend", a.backendName)
		return nil

	default:
		return fmt.Errorf("unknown transcription mode %q", tc.Mode)
	}
}

// Run acquires a session, opens the capture device, and drives the pipeline
// until ctx is cancelled or a subsystem fails.
//
// Session acquisition retries until it succeeds or ctx is cancelled: no
// audio is captured without a session.
func (a *App) Run(ctx context.Context) error {
	sessionID, err := a.coordinator.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("app: acquire session: %w", err)
	}

	if a.source == nil {
		format := audio.Format{
			SampleRate:    a.cfg.Audio.SampleRate,
			FrameDuration: a.cfg.Audio.FrameDuration(),
		}
		capture, err := miniaudio.Open(format, a.cfg.Audio.Device)
		if err != nil {
			return fmt.Errorf("app: open capture device: %w", err)
		}
		a.source = capture
		a.closers = append(a.closers, capture.Close)
		a.logger.Info("capture started",
			"device", a.cfg.Audio.Device,
			"sample_rate", format.SampleRate,
			"frame", format.FrameDuration)
	}

	p := pipeline.New(pipeline.Config{
		Source:     a.source,
		Classifier: a.classifier,
		Segmenter: pipeline.NewSegmenter(pipeline.SegmenterConfig{
			SilenceThreshold: a.cfg.Segmenter.SilenceThresholdDuration(),
			MinDuration:      a.cfg.Segmenter.MinSegmentDuration(),
			FrameDuration:    a.cfg.Audio.FrameDuration(),
		}),
		Backend:     a.backend,
		BackendName: a.backendName,
		Task:        stt.Task(a.cfg.Transcription.Task),
		Dispatcher:  a.dispatcher,
		SessionID:   sessionID,
		Workers:     a.cfg.Pipeline.Workers,
		QueueSize:   a.cfg.Pipeline.QueueSize,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The pipeline ending for any reason stops the metrics server too.
		defer cancel()
		return p.Run(ctx)
	})

	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observe.MetricsHandler())
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux}

		g.Go(func() error {
			a.logger.Info("metrics endpoint listening", "addr", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
