package logging

import (
	"io"
	"log/slog"
	"time"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyEnv      = "env"
	KeyPhase    = "phase"
	KeyCommand  = "command"
	KeyExitCode = "exit_code"
	KeyDuration = "duration"
	KeyStatus   = "status"
	KeyBackend  = "backend"
	KeyVersion  = "version"
	KeyPath     = "path"
	KeyError    = "error"
)

// Options controls handler construction.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool
}

// New returns a logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(h)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithEnv returns a logger with the env attribute set.
func WithEnv(logger *slog.Logger, env string) *slog.Logger {
	return logger.With(slog.String(KeyEnv, env))
}

// Env returns a slog attribute for the environment name.
func Env(name string) slog.Attr {
	return slog.String(KeyEnv, name)
}

// Phase returns a slog attribute for the run phase.
func Phase(phase string) slog.Attr {
	return slog.String(KeyPhase, phase)
}

// Command returns a slog attribute for a command line.
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// ExitCode returns a slog attribute for a process exit code.
func ExitCode(code int) slog.Attr {
	return slog.Int(KeyExitCode, code)
}

// Duration returns a slog attribute for an elapsed time, rounded to
// milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration(KeyDuration, d.Round(time.Millisecond))
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Path returns a slog attribute for a file system path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}
