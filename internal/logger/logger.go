package logger

import (
	"log/slog"
	"os"

	"document-qa-backend/internal/config"
)

// Logger is the shared structured logger. Nil until InitLogger runs;
// the package helpers tolerate that so early startup paths can log.
var Logger *slog.Logger

// InitLogger sets up JSON logging on stdout. Debug mode lowers the
// level and attaches source locations.
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	})
	Logger = slog.New(handler)
	Logger.Info("Structured logging initialized", "level", level.String())
}

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
