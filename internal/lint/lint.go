// Package lint applies flake8 per-file-ignores rules.
//
// For a given file the suppressed codes are the union of the codes of every
// rule whose glob matches the file's relative path. Files matched by no
// rule get no suppressions.
//
// A listed code also suppresses every more specific code sharing its
// prefix, as flake8 does: "E1" suppresses "E101" and "E128".
package lint

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/globs"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// EnvName is the environment these rules belong to. Rules are only applied
// to output of this environment.
const EnvName = "flake8"

// rule is a compiled model.LintRule.
type rule struct {
	pattern *globs.Pattern
	codes   []string
}

// Matcher evaluates per-file-ignores rules against file paths.
type Matcher struct {
	rules []rule

	// root is used to relativize absolute paths before matching.
	root string
}

// NewMatcher compiles the rules of cfg. root is the matrix root directory;
// absolute paths passed to Suppressed are made relative to it.
func NewMatcher(cfg model.LintConfig, root string) (*Matcher, error) {
	m := &Matcher{root: root}
	for _, r := range cfg.PerFileIgnores {
		p, err := globs.Compile(r.Glob)
		if err != nil {
			return nil, err
		}
		codes := make([]string, 0, len(r.Codes))
		for _, c := range r.Codes {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(c)))
		}
		m.rules = append(m.rules, rule{pattern: p, codes: codes})
	}
	return m, nil
}

// Suppressed returns the sorted set of codes suppressed for path.
func (m *Matcher) Suppressed(path string) []string {
	rel := m.relative(path)
	set := make(map[string]bool)
	for _, r := range m.rules {
		if !r.pattern.Match(rel) {
			continue
		}
		for _, c := range r.codes {
			set[c] = true
		}
	}
	codes := make([]string, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// IsSuppressed reports whether code is suppressed for path.
func (m *Matcher) IsSuppressed(path, code string) bool {
	code = strings.ToUpper(code)
	for _, c := range m.Suppressed(path) {
		if strings.HasPrefix(code, c) {
			return true
		}
	}
	return false
}

// relative converts path to a slash-separated path relative to root.
func (m *Matcher) relative(path string) string {
	if m.root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return globs.Normalize(path)
}

// Violation is one line of flake8's default report format:
//
//	gcsa/event.py:12:80: E501 line too long (121 > 120 characters)
type Violation struct {
	Path    string
	Row     int
	Col     int
	Code    string
	Message string
}

// String renders the violation in flake8's format.
func (v Violation) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s", v.Path, v.Row, v.Col, v.Code, v.Message)
}

// ParseViolation parses one report line. The second return value is false
// for lines that are not violations (summaries, blank lines).
func ParseViolation(line string) (Violation, bool) {
	// Split from the left: path may not contain ':' on POSIX, but the
	// message may.
	parts := strings.SplitN(line, ":", 4)
	if len(parts) != 4 {
		return Violation{}, false
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Violation{}, false
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Violation{}, false
	}
	code, msg, _ := strings.Cut(strings.TrimSpace(parts[3]), " ")
	if code == "" {
		return Violation{}, false
	}
	return Violation{
		Path:    parts[0],
		Row:     row,
		Col:     col,
		Code:    code,
		Message: strings.TrimSpace(msg),
	}, true
}

// FilterStats summarizes a Filter run.
type FilterStats struct {
	Kept       int
	Suppressed int
}

// Filter copies a flake8 report from r to w, dropping violations whose code
// is suppressed for their file. Non-violation lines pass through unchanged.
func (m *Matcher) Filter(r io.Reader, w io.Writer) (FilterStats, error) {
	var stats FilterStats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := ParseViolation(line); ok {
			if m.IsSuppressed(v.Path, v.Code) {
				stats.Suppressed++
				continue
			}
			stats.Kept++
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read lint report: %w", err)
	}
	return stats, nil
}
