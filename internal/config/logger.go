package config

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger returns a configured zerolog.Logger for the process. Development
// environments get a console writer; everything else gets plain JSON.
func NewLogger(cfg *Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out zerolog.ConsoleWriter
	if cfg.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
