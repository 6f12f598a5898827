package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"clinscribe/internal/domain"
)

const envPrefix = "CLINSCRIBE"

// Config stores runtime configuration.
type Config struct {
	Realtime  RealtimeConfig
	Assistant AssistantConfig
	Audio     AudioConfig
	Session   SessionConfig
	Retry     RetryConfig
	Rules     RulesConfig
	Archive   ArchiveConfig
	Logging   LoggingConfig
	HTTP      HTTPConfig
}

type RealtimeConfig struct {
	APIKey string
	URL    string
	Model  string
}

type AssistantConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type AudioConfig struct {
	RecorderCommand    string
	PlayerCommand      string
	InputFormat        string
	InputDevice        string
	SampleRate         int
	Channels           int
	PlaybackSampleRate int
}

type SessionConfig struct {
	Mode               domain.Mode
	DoctorLanguage     string
	PatientLanguage    string
	DocumentLanguage   string
	ChunkSize          int
	FinalizeGrace      time.Duration
	StreamCloseTimeout time.Duration
}

type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type ArchiveConfig struct {
	Backend string
	Path    string
}

type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type HTTPConfig struct {
	Address string
}

// Load resolves configuration from defaults, an optional config file and
// CLINSCRIBE_* environment variables, in increasing priority. Values set or
// flag-bound on v directly win over all three. The config file is taken
// from the "config_file" key, then CLINSCRIBE_CONFIG, then
// ~/.config/clinscribe/config.yaml.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "clinscribe")

	setDefaults(v, configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("realtime.api_key", "CLINSCRIBE_REALTIME_API_KEY", "CLINSCRIBE_API_KEY")
	_ = v.BindEnv("assistant.api_key", "CLINSCRIBE_ASSISTANT_API_KEY", "CLINSCRIBE_API_KEY")

	explicit := strings.TrimSpace(v.GetString("config_file"))
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("CLINSCRIBE_CONFIG"))
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Realtime: RealtimeConfig{
			APIKey: strings.TrimSpace(v.GetString("realtime.api_key")),
			URL:    strings.TrimSpace(v.GetString("realtime.url")),
			Model:  strings.TrimSpace(v.GetString("realtime.model")),
		},
		Assistant: AssistantConfig{
			APIKey:  strings.TrimSpace(v.GetString("assistant.api_key")),
			BaseURL: strings.TrimSpace(v.GetString("assistant.base_url")),
			Timeout: v.GetDuration("assistant.timeout"),
		},
		Audio: AudioConfig{
			RecorderCommand:    v.GetString("audio.recorder_command"),
			PlayerCommand:      v.GetString("audio.player_command"),
			InputFormat:        v.GetString("audio.input_format"),
			InputDevice:        v.GetString("audio.input_device"),
			SampleRate:         v.GetInt("audio.sample_rate"),
			Channels:           v.GetInt("audio.channels"),
			PlaybackSampleRate: v.GetInt("audio.playback_sample_rate"),
		},
		Session: SessionConfig{
			Mode:               domain.Mode(strings.ToLower(strings.TrimSpace(v.GetString("session.mode")))),
			DoctorLanguage:     strings.TrimSpace(v.GetString("session.doctor_language")),
			PatientLanguage:    strings.TrimSpace(v.GetString("session.patient_language")),
			DocumentLanguage:   strings.TrimSpace(v.GetString("session.document_language")),
			ChunkSize:          v.GetInt("session.chunk_size"),
			FinalizeGrace:      v.GetDuration("session.finalize_grace"),
			StreamCloseTimeout: v.GetDuration("session.stream_close_timeout"),
		},
		Retry: RetryConfig{
			MaxRetries:   v.GetInt("retry.max_retries"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			Multiplier:   v.GetFloat64("retry.multiplier"),
		},
		Rules: RulesConfig{
			Path:           strings.TrimSpace(v.GetString("rules.path")),
			IterationLimit: v.GetInt("rules.iteration_limit"),
		},
		Archive: ArchiveConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("archive.backend"))),
			Path:    strings.TrimSpace(v.GetString("archive.path")),
		},
		Logging: LoggingConfig{
			Level:      v.GetString("logging.level"),
			Format:     v.GetString("logging.format"),
			File:       strings.TrimSpace(v.GetString("logging.file")),
			MaxSizeMB:  v.GetInt("logging.max_size_mb"),
			MaxBackups: v.GetInt("logging.max_backups"),
			MaxAgeDays: v.GetInt("logging.max_age_days"),
		},
		HTTP: HTTPConfig{
			Address: strings.TrimSpace(v.GetString("http.address")),
		},
	}

	applyFallbacks(&cfg, configDir)

	if err := validateLanguages(cfg.Session); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("realtime.api_key", "")
	v.SetDefault("realtime.url", "wss://realtime.clinscribe.local/v1/listen")
	v.SetDefault("realtime.model", "live-transcribe-1")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.base_url", "https://assistant.clinscribe.local/v1")
	v.SetDefault("assistant.timeout", "60s")
	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.player_command", "ffplay")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.playback_sample_rate", 24000)
	v.SetDefault("session.mode", string(domain.ModeUnilingual))
	v.SetDefault("session.doctor_language", "en")
	v.SetDefault("session.patient_language", "es")
	v.SetDefault("session.document_language", "en")
	v.SetDefault("session.chunk_size", 4096)
	v.SetDefault("session.finalize_grace", "400ms")
	v.SetDefault("session.stream_close_timeout", "4s")
	v.SetDefault("retry.max_retries", 2)
	v.SetDefault("retry.initial_delay", "200ms")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("rules.path", filepath.Join(configDir, "substitutions.rules"))
	v.SetDefault("rules.iteration_limit", 30)
	v.SetDefault("archive.backend", "file")
	v.SetDefault("archive.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("http.address", "127.0.0.1:8420")
}

func applyFallbacks(cfg *Config, configDir string) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.PlaybackSampleRate <= 0 {
		cfg.Audio.PlaybackSampleRate = 24000
	}
	if !cfg.Session.Mode.Valid() {
		cfg.Session.Mode = domain.ModeUnilingual
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.FinalizeGrace <= 0 {
		cfg.Session.FinalizeGrace = 400 * time.Millisecond
	}
	if cfg.Session.StreamCloseTimeout <= 0 {
		cfg.Session.StreamCloseTimeout = 4 * time.Second
	}
	if cfg.Assistant.Timeout <= 0 {
		cfg.Assistant.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 200 * time.Millisecond
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 2
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	switch cfg.Archive.Backend {
	case "file", "sqlite":
	default:
		cfg.Archive.Backend = "file"
	}
	if cfg.Archive.Path == "" {
		name := "archive.toml"
		if cfg.Archive.Backend == "sqlite" {
			name = "archive.sqlite"
		}
		cfg.Archive.Path = filepath.Join(configDir, name)
	}
}

func validateLanguages(session SessionConfig) error {
	for key, value := range map[string]string{
		"session.doctor_language":   session.DoctorLanguage,
		"session.patient_language":  session.PatientLanguage,
		"session.document_language": session.DocumentLanguage,
	} {
		if _, err := language.Parse(value); err != nil {
			return fmt.Errorf("%s: invalid language tag %q: %w", key, value, err)
		}
	}
	return nil
}
