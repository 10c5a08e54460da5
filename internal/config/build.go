// build.go validates a RawConfig and converts it into a model.Matrix.
//
// Validation is eager and exhaustive for referential integrity:
//   - every environment must have a valid, unique name
//   - every envlist entry must name a declared environment, or is declared
//     implicitly from [testenv] (tox semantics)
//   - every environment named in the version mapping must exist
//   - every version must be bound at most once
//   - lint and coverage globs must compile
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/globs"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// Build validates raw and returns the resulting Matrix. source is the
// absolute configuration file path; its directory becomes Matrix.RootDir.
func Build(raw *RawConfig, source string) (*model.Matrix, error) {
	m := &model.Matrix{
		Source:  source,
		RootDir: filepath.Dir(source),
	}

	base := RawEnv{}
	if raw.Base != nil {
		base = *raw.Base
	}

	// Collect explicitly declared environments first, in file order.
	declared := make(map[string]bool)
	for _, re := range raw.Environments {
		name := strings.TrimSpace(re.Name)
		if err := model.ValidateEnvName(name); err != nil {
			return nil, &model.ConfigError{Source: source, Section: "testenv", Message: err.Error()}
		}
		if declared[name] {
			return nil, &model.ConfigError{Source: source, Section: "testenv:" + name, Message: fmt.Sprintf("environment %q declared more than once", name)}
		}
		declared[name] = true

		env, err := buildEnv(name, base, re)
		if err != nil {
			return nil, &model.ConfigError{Source: source, Section: "testenv:" + name, Message: "invalid environment", Err: err}
		}
		m.Environments = append(m.Environments, env)
	}

	// envlist entries without their own section inherit [testenv] entirely.
	seen := make(map[string]bool)
	for _, name := range raw.EnvList {
		name = strings.TrimSpace(name)
		if err := model.ValidateEnvName(name); err != nil {
			return nil, &model.ConfigError{Source: source, Section: "tox", Message: "invalid envlist entry", Err: err}
		}
		if seen[name] {
			return nil, &model.ConfigError{Source: source, Section: "tox", Message: fmt.Sprintf("environment %q listed twice in envlist", name)}
		}
		seen[name] = true
		m.EnvList = append(m.EnvList, name)

		if declared[name] {
			continue
		}
		if raw.Base == nil {
			return nil, &model.ConfigError{Source: source, Section: "tox", Message: fmt.Sprintf("envlist references environment %q, which has no [testenv:%s] section and no [testenv] defaults", name, name)}
		}
		env, err := buildEnv(name, base, RawEnv{Name: name})
		if err != nil {
			return nil, &model.ConfigError{Source: source, Section: "testenv", Message: "invalid environment", Err: err}
		}
		m.Environments = append(m.Environments, env)
		declared[name] = true
	}

	if err := buildVersions(m, raw.Versions, declared); err != nil {
		return nil, err
	}
	if err := buildLint(m, raw.Flake8); err != nil {
		return nil, err
	}
	if err := buildCoverage(m, raw.Coverage); err != nil {
		return nil, err
	}

	return m, nil
}

// buildEnv merges an environment block over the base block.
func buildEnv(name string, base, re RawEnv) (model.Environment, error) {
	env := model.Environment{
		Name:        name,
		Description: firstNonEmpty(re.Description, base.Description),
		ChangeDir:   firstNonEmpty(re.ChangeDir, base.ChangeDir),
		BasePython:  firstNonEmpty(re.BasePython, base.BasePython),
	}

	deps := re.Deps
	if deps == nil {
		deps = base.Deps
	}
	for _, spec := range deps {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		dep, err := model.ParseDependency(spec)
		if err != nil {
			return model.Environment{}, err
		}
		env.Deps = append(env.Deps, dep)
	}

	commands := re.Commands
	if commands == nil {
		commands = base.Commands
	}
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			env.Commands = append(env.Commands, c)
		}
	}

	// setenv merges key by key: the environment wins over the base.
	if len(base.SetEnv) > 0 || len(re.SetEnv) > 0 {
		env.SetEnv = make(map[string]string, len(base.SetEnv)+len(re.SetEnv))
		for k, v := range base.SetEnv {
			env.SetEnv[k] = v
		}
		for k, v := range re.SetEnv {
			env.SetEnv[k] = v
		}
	}

	switch {
	case re.IgnoreErrors != nil:
		env.IgnoreErrors = *re.IgnoreErrors
	case base.IgnoreErrors != nil:
		env.IgnoreErrors = *base.IgnoreErrors
	}

	return env, nil
}

// buildVersions validates the interpreter version mapping.
func buildVersions(m *model.Matrix, versions []RawVersion, declared map[string]bool) error {
	bound := make(map[string]bool)
	for _, rv := range versions {
		version := strings.TrimSpace(rv.Version)
		if version == "" {
			return &model.ConfigError{Source: m.Source, Section: "gh-actions", Message: "version mapping entry has an empty version"}
		}
		if bound[version] {
			return &model.ConfigError{Source: m.Source, Section: "gh-actions", Message: fmt.Sprintf("version %q mapped more than once", version)}
		}
		bound[version] = true

		binding := model.VersionBinding{Version: version}
		inBinding := make(map[string]bool)
		for _, name := range rv.Envs {
			name = strings.TrimSpace(name)
			if !declared[name] {
				return &model.ConfigError{
					Source:  m.Source,
					Section: "gh-actions",
					Message: fmt.Sprintf("version %q references unknown environment %q (declared: %s)", version, name, strings.Join(sortedKeys(declared), ", ")),
				}
			}
			// The binding is an ordered set; repeated names collapse.
			if inBinding[name] {
				continue
			}
			inBinding[name] = true
			binding.Envs = append(binding.Envs, name)
		}
		m.Versions = append(m.Versions, binding)
	}
	return nil
}

// buildLint validates the [flake8] section.
func buildLint(m *model.Matrix, f8 *RawFlake8) error {
	if f8 == nil {
		return nil
	}
	if f8.MaxLineLength < 0 {
		return &model.ConfigError{Source: m.Source, Section: "flake8", Message: fmt.Sprintf("max-line-length must not be negative, got %d", f8.MaxLineLength)}
	}
	m.Lint.MaxLineLength = f8.MaxLineLength

	for _, ig := range f8.PerFileIgnores {
		if _, err := globs.Compile(ig.Glob); err != nil {
			return &model.ConfigError{Source: m.Source, Section: "flake8", Message: "invalid per-file-ignores glob", Err: err}
		}
		rule := model.LintRule{Glob: strings.TrimSpace(ig.Glob)}
		for _, code := range ig.Codes {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				rule.Codes = append(rule.Codes, code)
			}
		}
		if len(rule.Codes) == 0 {
			return &model.ConfigError{Source: m.Source, Section: "flake8", Message: fmt.Sprintf("per-file-ignores entry %q lists no codes", ig.Glob)}
		}
		m.Lint.PerFileIgnores = append(m.Lint.PerFileIgnores, rule)
	}
	return nil
}

// buildCoverage validates the [coverage:report] section.
func buildCoverage(m *model.Matrix, cov *RawCoverage) error {
	if cov == nil {
		return nil
	}
	for _, marker := range cov.ExcludeLines {
		if marker = strings.TrimSpace(marker); marker != "" {
			m.Coverage.ExcludeLines = append(m.Coverage.ExcludeLines, marker)
		}
	}
	for _, pattern := range cov.Omit {
		if _, err := globs.Compile(pattern); err != nil {
			return &model.ConfigError{Source: m.Source, Section: "coverage:report", Message: "invalid omit glob", Err: err}
		}
		m.Coverage.Omit = append(m.Coverage.Omit, strings.TrimSpace(pattern))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
