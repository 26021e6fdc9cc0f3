package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a logger at the given level. In dev the output is the
// human-readable console format, otherwise JSON lines on stdout.
func New(level, env string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, env)
}

func NewWithWriter(w io.Writer, level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if env == "dev" {
		out = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Default returns an info-level JSON logger.
func Default() zerolog.Logger {
	return New("info", "")
}
