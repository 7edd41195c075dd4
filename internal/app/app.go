package app

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/audio"
	"github.com/lexiqai/cuecam/internal/bus"
	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/config"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/observability"
	"github.com/lexiqai/cuecam/internal/recognition"
	"github.com/lexiqai/cuecam/internal/remote"
	"github.com/lexiqai/cuecam/internal/resilience"
	"github.com/lexiqai/cuecam/internal/settings"
)

// App holds the wired voice-command core shared by both binaries
type App struct {
	Config   *config.Config
	Listener *listener.Listener
	Settings *settings.Store
	Engine   recognition.Engine

	// Push is set when audio arrives from a remote controller
	Push *audio.PushDevice
	// Mock is set when the mock engine is configured
	Mock *recognition.MockEngine

	bus        *bus.Client
	nats       *bus.EmbeddedServer
	controlSub *nats.Subscription
	google     *recognition.GoogleEngine
	logger     zerolog.Logger
}

// New builds the core from configuration. The caller must Close the result.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	catalog, err := command.LoadCatalog(cfg.KeywordCatalogPath)
	if err != nil {
		return nil, err
	}

	a.Settings, err = settings.Open(ctx, settings.Config{
		Path:          cfg.SettingsDBPath,
		DefaultPreset: cfg.KeywordPreset,
		Catalog:       catalog,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	format := audio.Format{SampleRate: cfg.AudioSampleRate, FrameDuration: cfg.AudioFrameDuration()}

	device, err := a.buildDevice(format)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildEngine(ctx, format); err != nil {
		a.Close()
		return nil, err
	}

	a.Listener = listener.New(listener.Deps{
		Device:   device,
		Engine:   a.Engine,
		Keywords: a.Settings,
	}, listener.Options{
		SetupTimeout: cfg.SetupTimeout(),
		Backoff: resilience.Backoff{
			Initial:     cfg.RetryInitialBackoff(),
			Max:         cfg.RetryMaxBackoff(),
			Multiplier:  cfg.RetryMultiplier,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
		Logger: logger,
	})

	if err := a.connectBus(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info().
		Str("engine", a.Engine.Name()).
		Str("audio_source", cfg.AudioSource).
		Int("sample_rate", format.SampleRate).
		Msg("Voice command core ready")
	return a, nil
}

func (a *App) buildDevice(format audio.Format) (audio.Device, error) {
	cfg := a.Config
	if cfg.AudioSource == "remote" {
		encoding, err := audio.ParseEncoding(cfg.AudioEncoding)
		if err != nil {
			return nil, err
		}
		a.Push = audio.NewPushDevice(audio.PushConfig{
			Format:     format,
			Encoding:   encoding,
			BufferSize: cfg.AudioBufferSize,
			Logger:     a.logger,
		})
		return a.Push, nil
	}
	return audio.NewMicrophone(audio.MicrophoneConfig{
		Format:     format,
		BufferSize: cfg.AudioBufferSize,
		Logger:     a.logger,
	}), nil
}

func (a *App) buildEngine(ctx context.Context, format audio.Format) error {
	cfg := a.Config
	breaker := resilience.NewCircuitBreaker(cfg.Engine, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerReset())

	var engine recognition.Engine
	switch cfg.Engine {
	case "deepgram":
		engine = recognition.NewDeepgramEngine(recognition.DeepgramConfig{
			APIKey:   cfg.DeepgramAPIKey,
			Model:    cfg.DeepgramModel,
			Language: cfg.RecognitionLanguage,
			Format:   format,
			Breaker:  breaker,
			Logger:   a.logger,
		})
	case "google":
		google, err := recognition.NewGoogleEngine(ctx, recognition.GoogleConfig{
			Language:           cfg.RecognitionLanguage,
			Format:             format,
			SpeechStartTimeout: cfg.NoSpeechTimeout(),
			Breaker:            breaker,
			Logger:             a.logger,
		})
		if err != nil {
			return err
		}
		a.google = google
		engine = google
	case "mock":
		a.Mock = recognition.NewMockEngine()
		engine = a.Mock
	default:
		return fmt.Errorf("unknown engine %q", cfg.Engine)
	}

	a.Engine = recognition.WithSilenceTimeout(engine, recognition.SilenceConfig{
		Timeout: cfg.NoSpeechTimeout(),
		VAD: &audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		},
	})
	return nil
}

func (a *App) connectBus(ctx context.Context) error {
	cfg := a.Config
	url := cfg.NATSURL

	if cfg.NATSEmbedded {
		srv, err := bus.StartEmbedded("0.0.0.0", cfg.NATSPort, a.logger)
		if err != nil {
			return err
		}
		a.nats = srv
		if url == "" {
			url = srv.ClientURL()
		}
	}
	if url == "" {
		return nil
	}

	client, err := bus.Connect(ctx, bus.Config{URL: url, Name: "cuecam"}, a.logger)
	if err != nil {
		return err
	}
	a.bus = client
	a.Listener.Subscribe(bus.NewPublisher(client, cfg.NATSSubjectPrefix))

	a.controlSub, err = bus.ServeControl(client, cfg.NATSSubjectPrefix, a.Listener, a.Settings)
	if err != nil {
		return fmt.Errorf("failed to subscribe to control subject: %w", err)
	}
	return nil
}

// AudioSink returns where remote audio goes, or nil when capture is local
func (a *App) AudioSink() remote.AudioSink {
	if a.Push == nil {
		return nil
	}
	return a.Push
}

// ReadinessChecks returns the dependency checks for /ready
func (a *App) ReadinessChecks() map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{
		"engine":   a.Engine.Healthy,
		"settings": a.Settings.Healthy,
	}
	if a.bus != nil {
		checks["nats"] = a.bus.Healthy
	}
	return checks
}

// Close stops listening and releases every resource, newest first
func (a *App) Close() {
	if a.Listener != nil {
		a.Listener.Close()
	}
	if a.controlSub != nil {
		if err := a.controlSub.Unsubscribe(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to unsubscribe from control subject")
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	a.nats.Shutdown()
	if a.google != nil {
		if err := a.google.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close Google Speech client")
		}
	}
	if a.Settings != nil {
		if err := a.Settings.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close settings store")
		}
	}
}
