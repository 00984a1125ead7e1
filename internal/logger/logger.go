package logger

import (
	"io"
	"log/slog"
	"os"

	"clinical-search-api/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	Logger = New(os.Stdout, cfg.GinMode == "debug")
	slog.SetDefault(Logger)

	Logger.Debug("Structured logging initialized")
}

// New builds a JSON logger. Debug mode lowers the level and adds source locations.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// L returns the process logger, falling back to slog's default before InitLogger.
func L() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
