// Package resolver selects which environments of a matrix should run.
//
// Resolution is a pure, stateless lookup over a validated model.Matrix:
//   - Resolve maps an interpreter version to its bound environments
//   - Select resolves an explicit list of environment names
//   - Default returns the matrix's envlist
//
// Because config.Build already guarantees that every name referenced by the
// version mapping and the envlist exists, failures here are always lookup
// failures on caller input, reported as *model.LookupError.
package resolver

import (
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// AllEnvs is the special selector that expands to every declared environment.
const AllEnvs = "ALL"

// Resolve returns the ordered environments bound to version.
//
// An exact key is required, with one relaxation: "3.13.2" falls back to the
// "3.13" key when no exact binding exists. A version with no binding at all
// fails with a LookupError and nothing is returned.
func Resolve(m *model.Matrix, version string) ([]model.Environment, error) {
	version = strings.TrimSpace(version)

	names, ok := m.Versions.Lookup(version)
	if !ok {
		if short := MajorMinor(version); short != version {
			names, ok = m.Versions.Lookup(short)
		}
	}
	if !ok {
		return nil, &model.LookupError{Kind: model.LookupVersion, Key: version, Known: m.Versions.Versions()}
	}

	return byName(m, names)
}

// Select resolves explicitly requested environment names, keeping the
// requested order and dropping duplicates. The name "ALL" expands to every
// declared environment.
func Select(m *model.Matrix, names []string) ([]model.Environment, error) {
	var expanded []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		candidates := []string{n}
		if n == AllEnvs {
			candidates = m.EnvNames()
		}
		for _, c := range candidates {
			if !seen[c] {
				seen[c] = true
				expanded = append(expanded, c)
			}
		}
	}
	return byName(m, expanded)
}

// Default returns the environments of the envlist, in order.
func Default(m *model.Matrix) ([]model.Environment, error) {
	return byName(m, m.EnvList)
}

// SplitNames parses a comma-separated selector such as "pytest,flake8".
func SplitNames(selector string) []string {
	var out []string
	for _, part := range strings.Split(selector, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MajorMinor truncates a version to its first two components:
// "3.13.2" → "3.13". Versions with fewer components are returned unchanged.
func MajorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 3 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// byName maps names to environments, failing on the first unknown one.
func byName(m *model.Matrix, names []string) ([]model.Environment, error) {
	envs := make([]model.Environment, 0, len(names))
	for _, name := range names {
		env, ok := m.Environment(name)
		if !ok {
			return nil, &model.LookupError{Kind: model.LookupEnvironment, Key: name, Known: m.EnvNames()}
		}
		envs = append(envs, *env)
	}
	return envs, nil
}

// Names returns the names of envs, in order.
func Names(envs []model.Environment) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Name)
	}
	return out
}
