// Package log provides the structured logger shared by every queue
// component. It plays the role the teacher's pkg/core.Logger played
// (one constructor, reused by every subsystem) but is backed by
// github.com/rs/zerolog instead of the stdlib log package, following
// dsjohal14-selfstack's use of zerolog for service-level logging.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the shared logger's output.
type Config struct {
	// JSON enables structured JSON output; otherwise a human-readable
	// console writer is used (handy for `go test -v` and local CLI runs).
	JSON bool
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Output overrides the destination; defaults to os.Stderr.
	Output io.Writer
}

// New builds a component-scoped logger, e.g. New(cfg, "publisher").
func New(cfg Config, component string) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
