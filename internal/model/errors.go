package model

import (
	"errors"
	"fmt"
	"strings"
)

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error, or that at least one
	// environment of a matrix run failed.
	ExitGeneralError ExitCode = 1

	// ExitConfigNotFound indicates no configuration file was found.
	ExitConfigNotFound ExitCode = 2

	// ExitConfigError indicates the configuration file is malformed or
	// references unknown environments.
	ExitConfigError ExitCode = 3

	// ExitUnknownVersion indicates the requested interpreter version has
	// no binding in the version mapping.
	ExitUnknownVersion ExitCode = 4

	// ExitUnknownEnv indicates an explicitly requested environment does
	// not exist.
	ExitUnknownEnv ExitCode = 5

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 6

	// ExitGitError indicates a Git operation (snapshot add/remove) failed.
	ExitGitError ExitCode = 7

	// ExitInterrupted indicates the run was aborted by a signal.
	// 130 is the conventional shell code for SIGINT.
	ExitInterrupted ExitCode = 130
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// Sentinel errors for the two resolution failure families.
// Use errors.Is to test for them; the concrete types carry the details.
var (
	// ErrLookup is matched by every LookupError.
	ErrLookup = errors.New("lookup error")

	// ErrConfig is matched by every ConfigError.
	ErrConfig = errors.New("configuration error")
)

// LookupKind distinguishes what could not be found.
type LookupKind string

const (
	LookupVersion     LookupKind = "interpreter version"
	LookupEnvironment LookupKind = "environment"
)

// LookupError is returned when a requested version or environment
// is not present in the matrix. No environments run when it occurs.
type LookupError struct {
	Kind  LookupKind
	Key   string
	Known []string
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("unknown %s %q", e.Kind, e.Key)
	if len(e.Known) > 0 {
		msg += fmt.Sprintf(" (known: %s)", strings.Join(e.Known, ", "))
	}
	return msg
}

// Is makes errors.Is(err, ErrLookup) succeed for any LookupError.
func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}

// ConfigError is returned when the configuration file is malformed or
// violates referential integrity (e.g., a version mapping referencing an
// undeclared environment).
type ConfigError struct {
	// Source is the configuration file path, if known.
	Source string

	// Section is the configuration section (e.g., "gh-actions").
	Section string

	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Section != "" {
		fmt.Fprintf(&b, "[%s] ", e.Section)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConfig) succeed for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
