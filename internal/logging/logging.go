package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a textual level to a zerolog level. Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "err":
		return zerolog.ErrorLevel
	case "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Options control logger construction.
type Options struct {
	Level string
	// Debug forces debug level regardless of Level.
	Debug bool
	// JSON disables the console writer and emits one JSON object per line.
	JSON bool
	Out  io.Writer
}

// New builds the logger handed to every component of a run.
func New(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl := ParseLevel(opts.Level)
	if opts.Debug {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
