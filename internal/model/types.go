// Package model defines the domain types for the envmatrix CLI.
//
// All entities in this package are explicit tagged records. Configuration
// loaders (ini, yaml, jsonc) decode into their own raw structures and then
// build these types, so every referential-integrity problem is reported
// before a single environment executes.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Dependency is a single entry of an environment's dependency list,
// as handed to the installer (pip).
//
// Examples of accepted specifiers:
//
//	pytest
//	pytest-cov>=4.0
//	sphinx[docs]==7.2.6
//	-r docs/requirements.txt
type Dependency struct {
	// Name is the distribution name, without extras or version constraint.
	// Empty for installer options such as "-r requirements.txt".
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Constraint is the version constraint (e.g., ">=4.0"), if any.
	Constraint string `json:"constraint,omitempty" yaml:"constraint,omitempty"`

	// Raw is the specifier exactly as written in the configuration file.
	// This is what gets passed to the installer.
	Raw string `json:"raw" yaml:"raw"`
}

// IsOption reports whether the dependency is an installer option
// (like "-r file" or "--index-url URL") rather than a package requirement.
func (d Dependency) IsOption() bool {
	return strings.HasPrefix(d.Raw, "-")
}

// String returns the raw specifier.
func (d Dependency) String() string {
	return d.Raw
}

// InstallArgs returns the argv fragment for this dependency.
// Options like "-r docs/requirements.txt" expand to two arguments.
func (d Dependency) InstallArgs() []string {
	if d.IsOption() {
		return strings.Fields(d.Raw)
	}
	return []string{d.Raw}
}

// constraintOperators lists PEP 440 comparison operators, longest first so
// that "===" is matched before "==" and "~=" before "=".
var constraintOperators = []string{"===", "==", "~=", "!=", ">=", "<=", ">", "<"}

// ParseDependency splits a dependency specifier into name and constraint.
// Extras ("[docs]") and environment markers ("; python_version<'3.8'")
// stay part of Raw but are not reflected in Name.
func ParseDependency(spec string) (Dependency, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Dependency{}, fmt.Errorf("dependency specifier must not be empty")
	}
	dep := Dependency{Raw: raw}
	if dep.IsOption() {
		return dep, nil
	}

	// Drop environment markers before looking for the constraint.
	req, _, _ := strings.Cut(raw, ";")
	req = strings.TrimSpace(req)

	idx := len(req)
	for _, op := range constraintOperators {
		if i := strings.Index(req, op); i >= 0 && i < idx {
			idx = i
		}
	}
	name := strings.TrimSpace(req[:idx])
	dep.Constraint = strings.ReplaceAll(strings.TrimSpace(req[idx:]), " ", "")

	// Strip extras: "sphinx[docs]" → "sphinx".
	if i := strings.Index(name, "["); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return Dependency{}, fmt.Errorf("dependency %q has no package name", raw)
	}
	dep.Name = name
	return dep, nil
}

// Environment is a named, isolated execution context with its own
// dependency set and command sequence.
//
// Environments are created at configuration-load time and are immutable
// thereafter; the runner only reads them.
type Environment struct {
	// Name uniquely identifies the environment within a Matrix.
	Name string `json:"name" yaml:"-"`

	// Description is a one-line human-readable summary.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Deps is the ordered dependency list installed before any command runs.
	Deps []Dependency `json:"deps,omitempty" yaml:"-"`

	// Commands are executed strictly in order. A command prefixed with "-"
	// has its exit code ignored.
	Commands []string `json:"commands" yaml:"commands"`

	// SetEnv holds extra environment variables for every command.
	SetEnv map[string]string `json:"setenv,omitempty" yaml:"setenv,omitempty"`

	// ChangeDir is the working directory for commands, relative to the
	// matrix root. Empty means the root itself.
	ChangeDir string `json:"changedir,omitempty" yaml:"changedir,omitempty"`

	// BasePython pins the interpreter (e.g., "python3.13" or "3.13").
	// Empty means the interpreter envmatrix was asked to use.
	BasePython string `json:"basepython,omitempty" yaml:"basepython,omitempty"`

	// IgnoreErrors keeps running the remaining commands after a failure.
	// The environment is still reported as failed.
	IgnoreErrors bool `json:"ignoreErrors,omitempty" yaml:"ignore_errors,omitempty"`
}

// DepSpecs returns the raw specifiers of all dependencies, in order.
func (e *Environment) DepSpecs() []string {
	specs := make([]string, 0, len(e.Deps))
	for _, d := range e.Deps {
		specs = append(specs, d.Raw)
	}
	return specs
}

// envNameRegex validates environment names. Dots are allowed because
// factor-style names such as "py3.13" are common in tox files.
var envNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateEnvName checks if the given name is a valid environment name.
func ValidateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if !envNameRegex.MatchString(name) {
		return fmt.Errorf("invalid environment name %q: must start with an alphanumeric character and contain only alphanumerics, '.', '_' or '-'", name)
	}
	return nil
}

// VersionBinding binds one interpreter version to the ordered set of
// environments that apply to it.
type VersionBinding struct {
	Version string   `json:"version" yaml:"version"`
	Envs    []string `json:"envs" yaml:"envs"`
}

// VersionMapping maps interpreter versions to environment names.
// It is an ordered slice rather than a map so that listing output
// follows the declaration order of the configuration file.
type VersionMapping []VersionBinding

// Lookup returns the environment names bound to version.
// The second return value is false when the version has no binding.
func (m VersionMapping) Lookup(version string) ([]string, bool) {
	for _, b := range m {
		if b.Version == version {
			return b.Envs, true
		}
	}
	return nil, false
}

// Versions returns all bound versions in declaration order.
func (m VersionMapping) Versions() []string {
	out := make([]string, 0, len(m))
	for _, b := range m {
		out = append(out, b.Version)
	}
	return out
}

// LintRule suppresses a set of rule codes for every file whose relative
// path matches Glob.
type LintRule struct {
	Glob  string   `json:"glob" yaml:"glob"`
	Codes []string `json:"codes" yaml:"codes"`
}

// LintConfig is the [flake8] section of the matrix.
type LintConfig struct {
	MaxLineLength  int        `json:"maxLineLength,omitempty" yaml:"max-line-length,omitempty"`
	PerFileIgnores []LintRule `json:"perFileIgnores,omitempty" yaml:"per-file-ignores,omitempty"`
}

// CoverageConfig is the [coverage:report] section of the matrix.
type CoverageConfig struct {
	// ExcludeLines holds literal markers; a source line containing any of
	// them is excluded from coverage accounting.
	ExcludeLines []string `json:"excludeLines,omitempty" yaml:"exclude_lines,omitempty"`

	// Omit holds file-path globs excluded from coverage entirely.
	Omit []string `json:"omit,omitempty" yaml:"omit,omitempty"`
}

// Matrix is the fully validated environment matrix loaded from one
// configuration file.
type Matrix struct {
	// RootDir is the absolute directory containing the configuration file.
	// Commands run relative to it.
	RootDir string `json:"rootDir"`

	// Source is the absolute path of the configuration file.
	Source string `json:"source"`

	// EnvList is the ordered list of environments run by default.
	EnvList []string `json:"envlist"`

	// Environments holds every declared environment in declaration order.
	Environments []Environment `json:"environments"`

	// Versions maps interpreter versions to environment names.
	Versions VersionMapping `json:"versions,omitempty"`

	Lint     LintConfig     `json:"lint"`
	Coverage CoverageConfig `json:"coverage"`
}

// Environment returns the environment with the given name.
func (m *Matrix) Environment(name string) (*Environment, bool) {
	for i := range m.Environments {
		if m.Environments[i].Name == name {
			return &m.Environments[i], true
		}
	}
	return nil, false
}

// EnvNames returns the names of all declared environments in order.
func (m *Matrix) EnvNames() []string {
	names := make([]string, 0, len(m.Environments))
	for _, e := range m.Environments {
		names = append(names, e.Name)
	}
	return names
}

// IsDefault reports whether name is part of the default envlist.
func (m *Matrix) IsDefault(name string) bool {
	for _, n := range m.EnvList {
		if n == name {
			return true
		}
	}
	return false
}
