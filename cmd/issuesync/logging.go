package main

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"issuesync/internal/config"
)

// setupLogging installs the default slog logger. With LOG_FILE set, output goes to a rotated
// file instead of w and the returned closer must be closed on exit.
func setupLogging(cfg *config.Config, w io.Writer) io.Closer {
	var closer io.Closer
	if cfg.LogFile != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		w = rotated
		closer = rotated
	}

	slog.SetDefault(slog.New(newLogHandler(w, cfg.LogLevel, cfg.LogFormat)))
	return closer
}

func newLogHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
