// ini.go decodes tox.ini files.
//
// tox relies on Python configparser conventions that plain INI parsers do
// not support by default: values continue on following indented lines, and
// "#" inside a value is not a comment. gopkg.in/ini.v1 covers both through
// LoadOptions. On top of that, tox allows cross-section references of the
// form {[section]key}, which are expanded here before values are split.
package config

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"
)

// Section names used by tox and the tools it configures.
const (
	sectionTox       = "tox"
	sectionGHActions = "gh-actions"
	sectionBaseEnv   = "testenv"
	sectionEnvPrefix = "testenv:"
	sectionFlake8    = "flake8"
	sectionCoverage  = "coverage:report"
)

// iniLoadOptions configures ini.v1 for configparser-compatible parsing.
var iniLoadOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	KeyValueDelimiters:         "=",
}

// sectionRefRegex matches tox cross-section references like {[testenv]deps}.
var sectionRefRegex = regexp.MustCompile(`\{\[([^\]]+)\]([A-Za-z0-9_-]+)\}`)

// maxRefDepth bounds nested {[section]key} expansion.
const maxRefDepth = 8

// parseINI decodes a tox.ini document into a RawConfig.
func parseINI(data []byte) (*RawConfig, error) {
	file, err := ini.LoadSources(iniLoadOptions, dropBlankContinuationLines(data))
	if err != nil {
		return nil, err
	}
	p := &iniParser{file: file}

	raw := &RawConfig{}
	if sec, ok := p.section(sectionTox); ok {
		raw.EnvList = splitList(p.value(sec, "envlist"))
	}

	if sec, ok := p.section(sectionBaseEnv); ok {
		base := p.env(sec, "")
		raw.Base = &base
	}

	// Named environments keep their file order.
	for _, sec := range file.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, sectionEnvPrefix) {
			continue
		}
		raw.Environments = append(raw.Environments, p.env(sec, strings.TrimPrefix(name, sectionEnvPrefix)))
	}

	if sec, ok := p.section(sectionGHActions); ok {
		versions, err := parseVersionLines(p.value(sec, "python"))
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", sectionGHActions, err)
		}
		raw.Versions = versions
	}

	if sec, ok := p.section(sectionFlake8); ok {
		f8 := &RawFlake8{}
		if v := p.value(sec, "max-line-length"); v != "" {
			n, err := sec.Key("max-line-length").Int()
			if err != nil {
				return nil, fmt.Errorf("[%s] max-line-length %q is not an integer", sectionFlake8, v)
			}
			f8.MaxLineLength = n
		}
		ignores, err := parsePerFileIgnores(p.value(sec, "per-file-ignores"))
		if err != nil {
			return nil, fmt.Errorf("[%s] %w", sectionFlake8, err)
		}
		f8.PerFileIgnores = ignores
		raw.Flake8 = f8
	}

	if sec, ok := p.section(sectionCoverage); ok {
		raw.Coverage = &RawCoverage{
			ExcludeLines: splitLines(p.value(sec, "exclude_lines")),
			Omit:         splitList(p.value(sec, "omit")),
		}
	}

	return raw, nil
}

// iniParser wraps an ini.File with tox-specific value access.
type iniParser struct {
	file *ini.File
}

// section returns the named section if it is declared in the file.
func (p *iniParser) section(name string) (*ini.Section, bool) {
	sec, err := p.file.GetSection(name)
	if err != nil {
		return nil, false
	}
	return sec, true
}

// value returns a key's value with cross-section references expanded.
// Missing keys yield "".
func (p *iniParser) value(sec *ini.Section, key string) string {
	if !sec.HasKey(key) {
		return ""
	}
	return p.expand(sec.Key(key).Value(), 0)
}

// expand resolves {[section]key} references. Unknown references are left
// untouched so the command-level substitution can report them.
func (p *iniParser) expand(value string, depth int) string {
	if depth >= maxRefDepth {
		return value
	}
	return sectionRefRegex.ReplaceAllStringFunc(value, func(ref string) string {
		m := sectionRefRegex.FindStringSubmatch(ref)
		sec, ok := p.section(m[1])
		if !ok || !sec.HasKey(m[2]) {
			return ref
		}
		return p.expand(sec.Key(m[2]).Value(), depth+1)
	})
}

// env decodes one testenv section. Keys that are absent leave the
// corresponding RawEnv field nil so Build can inherit from [testenv].
func (p *iniParser) env(sec *ini.Section, name string) RawEnv {
	env := RawEnv{
		Name:        name,
		Description: strings.TrimSpace(p.value(sec, "description")),
		ChangeDir:   strings.TrimSpace(p.value(sec, "changedir")),
		BasePython:  strings.TrimSpace(p.value(sec, "basepython")),
	}
	if sec.HasKey("deps") {
		env.Deps = nonNil(splitLines(p.value(sec, "deps")))
	}
	if sec.HasKey("commands") {
		env.Commands = nonNil(joinContinuations(splitLines(p.value(sec, "commands"))))
	}
	if sec.HasKey("setenv") {
		env.SetEnv = parseSetEnv(p.value(sec, "setenv"))
	}
	if sec.HasKey("ignore_errors") {
		v, err := sec.Key("ignore_errors").Bool()
		if err == nil {
			env.IgnoreErrors = &v
		}
	}
	return env
}

// splitLines splits a multi-line value into trimmed, non-empty lines,
// dropping full-line comments.
func splitLines(value string) []string {
	var out []string
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dropBlankContinuationLines removes empty lines that sit inside an
// indented multi-line value. configparser keeps such values together;
// ini.v1 would end the value at the blank line and fail on the next one.
func dropBlankContinuationLines(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	out := make([]string, 0, len(lines))
	inValue := false
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
			// A key line or a continuation may be followed by more continuations.
			inValue = !strings.HasPrefix(strings.TrimSpace(line), "[")
			continue
		}
		if inValue && nextIsContinuation(lines[i+1:]) {
			continue
		}
		out = append(out, line)
	}
	return []byte(strings.Join(out, "\n"))
}

// nextIsContinuation reports whether the first non-blank line is indented.
func nextIsContinuation(lines []string) bool {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line[0] == ' ' || line[0] == '\t'
	}
	return false
}

// splitList splits a value on newlines and commas, as tox does for envlist
// and tox-gh-actions does for environment lists.
func splitList(value string) []string {
	var out []string
	for _, line := range splitLines(value) {
		for _, item := range strings.Split(line, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// joinContinuations merges command lines ending in a backslash with the
// following line.
func joinContinuations(lines []string) []string {
	var out []string
	var pending string
	for _, line := range lines {
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSpace(strings.TrimSuffix(line, "\\")) + " "
			continue
		}
		out = append(out, pending+line)
		pending = ""
	}
	if pending != "" {
		out = append(out, strings.TrimSpace(pending))
	}
	return out
}

// parseSetEnv decodes "KEY = value" lines.
func parseSetEnv(value string) map[string]string {
	env := make(map[string]string)
	for _, line := range splitLines(value) {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			env[k] = strings.TrimSpace(v)
		}
	}
	return env
}

// parseVersionLines decodes tox-gh-actions "3.13: pytest, flake8" lines.
func parseVersionLines(value string) ([]RawVersion, error) {
	var out []RawVersion
	for _, line := range splitLines(value) {
		version, envs, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid python mapping line %q (expected \"<version>: <env>[, <env>...]\")", line)
		}
		out = append(out, RawVersion{
			Version: strings.TrimSpace(version),
			Envs:    nonNil(splitList(envs)),
		})
	}
	return out, nil
}

// perFileIgnoreTokenRegex splits a per-file-ignores value into colons,
// codes and file names, the way flake8 tokenizes it.
var perFileIgnoreTokenRegex = regexp.MustCompile(`[^\s:,]+|:`)

// lintCodeRegex matches a flake8 rule code or code prefix (E, E1, N802).
var lintCodeRegex = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{0,3}$`)

// parsePerFileIgnores decodes flake8 "glob:CODE1,CODE2" entries. Entries
// may share a line when separated by whitespace, several globs may share
// one code list ("a.py b.py: E1"), and codes may be separated by commas or
// whitespace.
func parsePerFileIgnores(value string) ([]RawLintIgnore, error) {
	var (
		out     []RawLintIgnore
		globs   []string
		codes   []string
		inCodes bool
	)
	flush := func() {
		for _, g := range globs {
			out = append(out, RawLintIgnore{Glob: g, Codes: append([]string{}, codes...)})
		}
		globs, codes, inCodes = nil, nil, false
	}

	for _, tok := range perFileIgnoreTokenRegex.FindAllString(value, -1) {
		switch {
		case tok == ":":
			if len(globs) == 0 || inCodes {
				return nil, fmt.Errorf("invalid per-file-ignores value %q (expected \"<glob>:<codes>\")", strings.TrimSpace(value))
			}
			inCodes = true
		case inCodes && lintCodeRegex.MatchString(tok):
			codes = append(codes, tok)
		default:
			if inCodes {
				flush()
			}
			globs = append(globs, tok)
		}
	}
	if len(globs) > 0 && !inCodes {
		return nil, fmt.Errorf("invalid per-file-ignores value %q: %q has no codes", strings.TrimSpace(value), strings.Join(globs, " "))
	}
	flush()
	return out, nil
}

// nonNil turns a nil result into an empty slice, so that a key present
// with an empty value overrides the inherited one.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
