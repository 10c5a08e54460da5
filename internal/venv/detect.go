package venv

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// versionRegex extracts "3.13" from "Python 3.13.1".
var versionRegex = regexp.MustCompile(`Python (\d+)\.(\d+)`)

// DetectVersion returns the major.minor version of the given interpreter.
// It backs `run --python auto`.
func DetectVersion(ctx context.Context, python string) (string, error) {
	if python == "" {
		python = DefaultPython
	}
	// Python 2 prints the version to stderr.
	out, err := exec.CommandContext(ctx, python, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to run %s --version: %w", python, err)
	}
	m := versionRegex.FindStringSubmatch(strings.TrimSpace(string(out)))
	if m == nil {
		return "", fmt.Errorf("unrecognized version output from %s: %q", python, strings.TrimSpace(string(out)))
	}
	return m[1] + "." + m[2], nil
}
