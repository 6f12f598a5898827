package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"clinscribe/internal/archive/filestore"
	"clinscribe/internal/archive/sqlitestore"
	"clinscribe/internal/audio"
	"clinscribe/internal/config"
	"clinscribe/internal/logging"
	"clinscribe/internal/metrics"
	"clinscribe/internal/ports"
	"clinscribe/internal/providers/assistant"
	"clinscribe/internal/providers/realtime"
	"clinscribe/internal/retry"
	"clinscribe/internal/rules"
	"clinscribe/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Archive    ports.Archive
	Controller *usecase.SessionController

	closers []io.Closer
}

// Close stops the controller, then releases the archive and the log file.
func (s *Services) Close() error {
	var errs []error
	if s.Controller != nil {
		errs = append(errs, s.Controller.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// Base loads configuration and builds the logger, the metrics registry and
// the archive. Commands that never capture audio stop here.
func Base(v *viper.Viper) (*Services, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}
	services := &Services{Config: cfg, Logger: logger, closers: []io.Closer{logCloser}}

	services.Registry = prometheus.NewRegistry()
	services.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	services.Metrics = metrics.New(services.Registry)

	archive, archiveCloser, err := OpenArchive(cfg.Archive)
	if err != nil {
		_ = services.Close()
		return nil, err
	}
	services.Archive = archive
	if archiveCloser != nil {
		services.closers = append(services.closers, archiveCloser)
	}

	logger.Debug("archive opened", "backend", cfg.Archive.Backend, "path", cfg.Archive.Path)
	return services, nil
}

// Build wires all backend dependencies for the current runtime.
func Build(v *viper.Viper, events ports.EventSink) (*Services, error) {
	services, err := Base(v)
	if err != nil {
		return nil, err
	}
	cfg := services.Config

	rulesEngine, err := rules.Load(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		_ = services.Close()
		return nil, err
	}

	client := assistant.NewClient(assistant.Config{
		APIKey:  cfg.Assistant.APIKey,
		BaseURL: cfg.Assistant.BaseURL,
		Timeout: cfg.Assistant.Timeout,
	})

	services.Controller = usecase.NewSessionController(
		usecase.Dependencies{
			Audio: audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			Transcriber: realtime.NewProvider(realtime.Config{
				APIKey: cfg.Realtime.APIKey,
				URL:    cfg.Realtime.URL,
				Model:  cfg.Realtime.Model,
			}),
			Reasoner:   client,
			Translator: client,
			Refiner:    client,
			Verifier:   client,
			Player:     audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand),
			Rules:      rulesEngine,
			Archive:    services.Archive,
			Events:     events,
			Logger:     services.Logger,
			Metrics:    services.Metrics,
		},
		usecase.Config{
			Mode: cfg.Session.Mode,
			Languages: usecase.Languages{
				Doctor:   cfg.Session.DoctorLanguage,
				Patient:  cfg.Session.PatientLanguage,
				Document: cfg.Session.DocumentLanguage,
			},
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize:          cfg.Session.ChunkSize,
			FinalizeGrace:      cfg.Session.FinalizeGrace,
			StreamCloseTimeout: cfg.Session.StreamCloseTimeout,
			PlaybackSampleRate: cfg.Audio.PlaybackSampleRate,
			Retry: retry.Policy{
				MaxRetries:   cfg.Retry.MaxRetries,
				InitialDelay: cfg.Retry.InitialDelay,
				Multiplier:   cfg.Retry.Multiplier,
			},
		},
	)

	services.Logger.Info("session controller ready",
		"mode", cfg.Session.Mode,
		"rules", rulesEngine.Len(),
		"archive", cfg.Archive.Backend,
	)
	return services, nil
}

// OpenArchive opens the configured archive backend. The closer is nil for
// backends that hold no resources.
func OpenArchive(cfg config.ArchiveConfig) (ports.Archive, io.Closer, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := sqlitestore.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		return store, store, nil
	case "", "file":
		store, err := filestore.New(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open archive file: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
