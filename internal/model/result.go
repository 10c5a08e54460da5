package model

import (
	"fmt"
	"strings"
	"time"
)

// EnvStatus represents the outcome of a single environment run.
// The transitions are:
//
//	[pending] → passed
//	[pending] → failed   (provisioning or a command failed)
//	[pending] → skipped  (the run was interrupted before this env started)
type EnvStatus string

const (
	// StatusPassed indicates every command exited with code 0
	// (or was marked as ignorable).
	StatusPassed EnvStatus = "passed"

	// StatusFailed indicates provisioning failed or a command exited non-zero.
	StatusFailed EnvStatus = "failed"

	// StatusSkipped indicates the environment never started because the
	// whole matrix run was aborted.
	StatusSkipped EnvStatus = "skipped"
)

// String returns the string representation of EnvStatus.
func (s EnvStatus) String() string {
	return string(s)
}

// IsValid checks whether the EnvStatus value is one of the predefined states.
func (s EnvStatus) IsValid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseEnvStatus converts a string to an EnvStatus.
func ParseEnvStatus(s string) (EnvStatus, error) {
	status := EnvStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid environment status: %q (valid: passed, failed, skipped)", s)
	}
	return status, nil
}

// Phase identifies which part of an environment run produced its outcome.
type Phase string

const (
	// PhaseProvision covers creating the isolated environment and
	// installing its dependencies.
	PhaseProvision Phase = "provision"

	// PhaseCommands covers executing the command list.
	PhaseCommands Phase = "commands"
)

// CommandResult records the execution of one command line.
type CommandResult struct {
	// Command is the command line after substitution.
	Command string `json:"command"`

	// ExitCode is the process exit code; -1 if the process never started.
	ExitCode int `json:"exitCode"`

	// Ignored is true when the command was prefixed with "-", so a
	// non-zero exit did not fail the environment.
	Ignored bool `json:"ignored,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Failed reports whether this command counts as a failure.
func (c CommandResult) Failed() bool {
	return c.ExitCode != 0 && !c.Ignored
}

// EnvResult is the recorded outcome of one environment.
type EnvResult struct {
	Name   string    `json:"name"`
	Status EnvStatus `json:"status"`

	// Phase is where the run ended: PhaseProvision when provisioning
	// failed, PhaseCommands otherwise. Empty for skipped environments.
	Phase Phase `json:"phase,omitempty"`

	// Commands lists the commands that were actually executed.
	// Commands skipped after a failure are not included.
	Commands []CommandResult `json:"commands,omitempty"`

	// Error describes the failure, if any.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// MatrixResult aggregates the outcome of a whole matrix run.
type MatrixResult struct {
	Results  []EnvResult   `json:"results"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// Interrupted is true when the run was aborted (e.g., SIGINT).
	Interrupted bool `json:"interrupted,omitempty"`
}

// Failed reports whether any environment failed or was skipped.
func (r *MatrixResult) Failed() bool {
	if r.Interrupted {
		return true
	}
	for _, res := range r.Results {
		if res.Status != StatusPassed {
			return true
		}
	}
	return false
}

// Count returns how many environments ended with the given status.
func (r *MatrixResult) Count(status EnvStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Result returns the recorded result for the named environment.
func (r *MatrixResult) Result(name string) (*EnvResult, bool) {
	for i := range r.Results {
		if r.Results[i].Name == name {
			return &r.Results[i], true
		}
	}
	return nil, false
}

// ExitCode maps the aggregate outcome to a process exit code.
func (r *MatrixResult) ExitCode() ExitCode {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case r.Failed():
		return ExitGeneralError
	default:
		return ExitSuccess
	}
}
