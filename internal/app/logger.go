package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production runs emit JSON at Info
// with source locations for log aggregation; everything else gets a Debug
// level text handler without the source noise.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	if cfg != nil && cfg.IsProduction() {
		level = slog.LevelInfo
	}
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
