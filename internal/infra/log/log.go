package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"tradesim/internal/config"
)

type Logger = zerolog.Logger

// NewLogger builds the process logger from the logging section. Unknown levels
// fall back to info.
func NewLogger(cfg config.Config) Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.Config, out io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || cfg.Logging.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("inst", cfg.Feed.InstID).Logger()
}

// Component tags l with the emitting component.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}
