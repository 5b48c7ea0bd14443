// Package logger is the process-wide structured logger: JSON to stdout,
// level driven by config. The package default logs at info so code that runs
// before InitLogger (and tests) still emits instead of vanishing.
package logger

import (
	"log/slog"
	"os"

	"docatlas/internal/config"
)

var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// InitLogger reconfigures the logger from config: debug level and source
// locations in debug mode, info otherwise.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}
	Logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))

	Logger.Info("Structured logging initialized", "level", level.String())
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}
