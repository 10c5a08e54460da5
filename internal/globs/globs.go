// Package globs compiles the file-path globs used by lint and coverage rules.
//
// The configuration files this tool reads (flake8, coverage.py) use Python
// fnmatch semantics: "*" matches any run of characters INCLUDING the path
// separator, so "*/__init__.py" matches "gcsa/serializers/__init__.py".
// github.com/gobwas/glob gives exactly that behavior when compiled without
// separator runes. Braces and backslashes are escaped before compiling:
// fnmatch has neither "{a,b}" alternation nor escapes.
package globs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled fnmatch-style glob.
type Pattern struct {
	raw string
	g   glob.Glob
}

// Compile parses pattern. A trailing "/" is treated as "everything under
// this directory", which is how flake8 interprets directory entries.
func Compile(pattern string) (*Pattern, error) {
	raw := strings.TrimSpace(pattern)
	if raw == "" {
		return nil, fmt.Errorf("glob pattern must not be empty")
	}
	expr := Normalize(raw)
	if strings.HasSuffix(expr, "/") {
		expr += "*"
	}
	g, err := glob.Compile(fnmatchEscaper.Replace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", raw, err)
	}
	return &Pattern{raw: raw, g: g}, nil
}

// fnmatchEscaper quotes the gobwas syntax that fnmatch treats literally.
var fnmatchEscaper = strings.NewReplacer(`\`, `\\`, "{", `\{`, "}", `\}`)

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level defaults.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern as written in the configuration.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether path matches. The path is normalized first so that
// "./gcsa/__init__.py" behaves like "gcsa/__init__.py". Backslash
// separators are only converted on Windows.
func (p *Pattern) Match(path string) bool {
	return p.g.Match(Normalize(path))
}

// Normalize converts OS separators to forward slashes and strips a
// leading "./".
func Normalize(path string) string {
	p := filepath.ToSlash(strings.TrimSpace(path))
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// Set is an ordered list of compiled patterns.
type Set []*Pattern

// CompileAll compiles every pattern, failing on the first invalid one.
func CompileAll(patterns []string) (Set, error) {
	set := make(Set, 0, len(patterns))
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// Match returns the first pattern matching path, or nil.
func (s Set) Match(path string) *Pattern {
	for _, p := range s {
		if p.Match(path) {
			return p
		}
	}
	return nil
}
