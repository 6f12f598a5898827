// Package logging builds the process slog.Logger.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects level, encoding and destination.
// An empty File logs to stderr; otherwise the file is rotated by size and age.
type Config struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// New returns a logger and the closer for its destination.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if path := strings.TrimSpace(cfg.File); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    positiveOr(cfg.MaxSizeMB, 20),
			MaxBackups: positiveOr(cfg.MaxBackups, 5),
			MaxAge:     positiveOr(cfg.MaxAgeDays, 14),
			Compress:   true,
		}
		out = rotating
		closer = rotating
	}

	return slog.New(newHandler(out, cfg.Format, lvl)), closer, nil
}

func newHandler(out io.Writer, format string, lvl slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
