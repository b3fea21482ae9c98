package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/debate-arena/backend/internal/config"
)

// Setup configures the global zerolog logger from cfg.
func Setup(cfg config.LogConfig) {
	setup(cfg, os.Stderr)
}

func setup(cfg config.LogConfig, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := out
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
