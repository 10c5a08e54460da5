// Package coverage applies coverage:report exclusion rules.
//
// Two rule kinds exist:
//   - exclude markers: a source line that textually contains any marker is
//     removed from both the numerator and the denominator of coverage
//   - omit globs: a file whose path matches any glob is removed entirely,
//     regardless of its content
//
// Markers are matched as literal substrings, not regular expressions.
package coverage

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/globs"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// EnvName is the environment whose reporting phase these rules serve.
const EnvName = "coverage"

// Excluder evaluates coverage exclusion rules.
type Excluder struct {
	markers []string
	omit    globs.Set
	root    string
}

// NewExcluder compiles cfg. root is used to relativize absolute paths.
func NewExcluder(cfg model.CoverageConfig, root string) (*Excluder, error) {
	omit, err := globs.CompileAll(cfg.Omit)
	if err != nil {
		return nil, err
	}
	return &Excluder{
		markers: append([]string(nil), cfg.ExcludeLines...),
		omit:    omit,
		root:    root,
	}, nil
}

// ExcludedBy returns the first marker contained in line, or "".
// Markers are plain substrings, not regular expressions.
func (e *Excluder) ExcludedBy(line string) string {
	for _, m := range e.markers {
		if strings.Contains(line, m) {
			return m
		}
	}
	return ""
}

// IsLineExcluded reports whether line contains any exclusion marker.
func (e *Excluder) IsLineExcluded(line string) bool {
	return e.ExcludedBy(line) != ""
}

// IsFileOmitted reports whether path matches any omit glob.
func (e *Excluder) IsFileOmitted(path string) bool {
	return e.omit.Match(e.relative(path)) != nil
}

// relative makes absolute paths under root relative to it. Matching is
// tried against the relative form so "*/__init__.py" works for both.
func (e *Excluder) relative(path string) string {
	if e.root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(e.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

// Accounting summarizes how one file's lines are treated.
type Accounting struct {
	Path string `json:"path"`

	// Omitted is true when the whole file is excluded by an omit glob.
	// All other counters are zero in that case.
	Omitted bool `json:"omitted"`

	// Lines is the total number of lines read.
	Lines int `json:"lines"`

	// Blank counts empty or comment-only lines, which coverage never counts.
	Blank int `json:"blank"`

	// Excluded counts lines removed by an exclusion marker.
	Excluded int `json:"excluded"`

	// Counted is Lines - Blank - Excluded: lines that participate in coverage.
	Counted int `json:"counted"`

	// ExcludedLines lists the 1-based numbers of excluded lines.
	ExcludedLines []int `json:"excludedLines,omitempty"`
}

// Account classifies every line of the source read from r. Exclusion is
// checked before the blank/comment check so comment markers such as
// "# pragma: no cover" on their own line are reported as excluded.
func (e *Excluder) Account(path string, r io.Reader) (Accounting, error) {
	acc := Accounting{Path: path}
	if e.IsFileOmitted(path) {
		acc.Omitted = true
		return acc, nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		acc.Lines++
		line := scanner.Text()
		switch trimmed := strings.TrimSpace(line); {
		case e.IsLineExcluded(line):
			acc.Excluded++
			acc.ExcludedLines = append(acc.ExcludedLines, acc.Lines)
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			acc.Blank++
		default:
			acc.Counted++
		}
	}
	if err := scanner.Err(); err != nil {
		return acc, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return acc, nil
}
