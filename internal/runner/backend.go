package runner

import (
	"context"
	"io"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// Backend creates isolated sessions for environments.
type Backend interface {
	// Name identifies the backend in logs and reports (e.g., "local").
	Name() string

	// Open prepares a session for env. It must not install dependencies;
	// that is Session.Provision's job. An error from Open is reported as a
	// provisioning failure.
	Open(ctx context.Context, env model.Environment) (Session, error)
}

// Session is one environment's isolated execution context.
type Session interface {
	// Provision creates the isolated dependency set. Calling it again for
	// an unchanged environment must be safe and should be cheap.
	Provision(ctx context.Context) error

	// Run executes one command and returns its exit code. The error is
	// non-nil only when the command could not be started at all.
	Run(ctx context.Context, inv Invocation) (int, error)

	// Paths returns the locations used for command substitution.
	Paths() Paths

	// Close releases the session's resources (containers, temp files).
	Close(ctx context.Context) error
}

// Paths are the directories a session exposes to commands, as seen from
// inside the session (they differ between local and container backends).
type Paths struct {
	RootDir string
	EnvDir  string
	BinDir  string
}

// Invocation describes a single command execution.
type Invocation struct {
	// Args is the argv; Args[0] is the program.
	Args []string

	// Dir is the working directory, relative to Paths.RootDir unless it
	// is absolute. Empty means RootDir itself.
	Dir string

	// Env holds extra environment variables on top of the session's own.
	Env map[string]string

	Stdout io.Writer
	Stderr io.Writer
}
