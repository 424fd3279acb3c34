package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger configured from LOG_FORMAT and APP_ENV.
// Production defaults to JSON at Info; everything else logs text at Debug.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	format := ""
	if cfg != nil {
		format = cfg.LogFormat
		if cfg.IsProduction() {
			level = slog.LevelInfo
			if format == "" {
				format = "json"
			}
		}
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: true}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "vetpoint"))
}
