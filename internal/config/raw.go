package config

// RawConfig represents the format-independent structure of a matrix
// configuration file before validation.
//
// The YAML/JSON layout mirrors tox.ini section by section, but uses lists
// where tox relies on declaration order (environments, version bindings),
// because Go maps do not preserve key order.
type RawConfig struct {
	// EnvList is the ordered default environment list ([tox] envlist).
	EnvList []string `json:"envlist" yaml:"envlist"`

	// Base holds the settings every environment inherits ([testenv]).
	Base *RawEnv `json:"testenv,omitempty" yaml:"testenv,omitempty"`

	// Environments holds the named environments ([testenv:<name>]).
	Environments []RawEnv `json:"environments,omitempty" yaml:"environments,omitempty"`

	// Versions is the interpreter version mapping ([gh-actions] python).
	Versions []RawVersion `json:"versions,omitempty" yaml:"versions,omitempty"`

	// Flake8 is the lint configuration ([flake8]).
	Flake8 *RawFlake8 `json:"flake8,omitempty" yaml:"flake8,omitempty"`

	// Coverage is the coverage report configuration ([coverage:report]).
	Coverage *RawCoverage `json:"coverage,omitempty" yaml:"coverage,omitempty"`
}

// RawEnv is an environment block. Nil slices mean "not set" and are
// inherited from the base block; an explicitly empty slice overrides it.
type RawEnv struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Deps         []string          `json:"deps,omitempty" yaml:"deps,omitempty"`
	Commands     []string          `json:"commands,omitempty" yaml:"commands,omitempty"`
	SetEnv       map[string]string `json:"setenv,omitempty" yaml:"setenv,omitempty"`
	ChangeDir    string            `json:"changedir,omitempty" yaml:"changedir,omitempty"`
	BasePython   string            `json:"basepython,omitempty" yaml:"basepython,omitempty"`
	IgnoreErrors *bool             `json:"ignore_errors,omitempty" yaml:"ignore_errors,omitempty"`
}

// RawVersion binds an interpreter version to environment names.
type RawVersion struct {
	Version string   `json:"version" yaml:"version"`
	Envs    []string `json:"envs" yaml:"envs"`
}

// RawFlake8 mirrors the [flake8] section.
type RawFlake8 struct {
	MaxLineLength  int             `json:"max-line-length,omitempty" yaml:"max-line-length,omitempty"`
	PerFileIgnores []RawLintIgnore `json:"per-file-ignores,omitempty" yaml:"per-file-ignores,omitempty"`
}

// RawLintIgnore is one per-file-ignores entry.
type RawLintIgnore struct {
	Glob  string   `json:"glob" yaml:"glob"`
	Codes []string `json:"codes" yaml:"codes"`
}

// RawCoverage mirrors the [coverage:report] section.
type RawCoverage struct {
	ExcludeLines []string `json:"exclude_lines,omitempty" yaml:"exclude_lines,omitempty"`
	Omit         []string `json:"omit,omitempty" yaml:"omit,omitempty"`
}
