package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envmatrix/internal/docker"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

const testMatrix = `envlist: [pytest, flake8]

testenv:
  deps: [pytest]
  commands: ["pytest {posargs}"]

environments:
  - name: flake8
    description: style checks
    deps: [flake8, pep8-naming]
    commands: ["flake8 gcsa tests"]

versions:
  - version: "3.12"
    envs: [pytest]
  - version: "3.13"
    envs: [pytest, flake8]

flake8:
  per-file-ignores:
    - glob: "tests/google_calendar_tests/mock_services/*"
      codes: [N802, N803]

coverage:
  exclude_lines: ["pragma: no cover"]
  omit: ["*/__init__.py"]
`

// fakePython creates virtualenvs by copying itself and accepts everything else.
const fakePython = `#!/bin/sh
if [ "$1" = "-m" ] && [ "$2" = "venv" ]; then
	mkdir -p "$3/bin" && cp "$0" "$3/bin/python" && exit 0
fi
exit 0
`

// writeMatrix writes content as envmatrix.yaml in a temp dir and returns its path.
func writeMatrix(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "envmatrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{"nil", nil, model.ExitSuccess},
		{"cli error", model.NewCLIError(model.ExitDockerNotRunning, "docker"), model.ExitDockerNotRunning},
		{"unknown version", &model.LookupError{Kind: model.LookupVersion, Key: "2.7"}, model.ExitUnknownVersion},
		{"unknown env", fmt.Errorf("select: %w", &model.LookupError{Kind: model.LookupEnvironment, Key: "nope"}), model.ExitUnknownEnv},
		{"config error", fmt.Errorf("load: %w", model.ErrConfig), model.ExitConfigError},
		{"other", errors.New("boom"), model.ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestPrintErrorJSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	printError(&buf, model.WrapCLIError(model.ExitGitError, "snapshot failed", errors.New("not a repository")))

	var doc struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "snapshot failed", doc.Error.Message)
	assert.Equal(t, 7, doc.Error.Code)
	assert.Equal(t, "not a repository", doc.Error.Detail)
}

func TestResolveCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	out, _, err := execute(t, "", "-c", cfg, "resolve", "3.13.2")
	require.NoError(t, err)
	assert.Equal(t, "pytest\nflake8\n", out)

	_, _, err = execute(t, "", "-c", cfg, "resolve", "2.7")
	require.Error(t, err)
	assert.Equal(t, model.ExitUnknownVersion, ExitCodeFor(err))
}

func TestResolveCommandJSON(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	out, _, err := execute(t, "", "--json", "-c", cfg, "resolve", "3.12")
	require.NoError(t, err)

	var doc struct {
		Version      string   `json:"version"`
		Environments []string `json:"environments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "3.12", doc.Version)
	assert.Equal(t, []string{"pytest"}, doc.Environments)
}

func TestListCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	out, _, err := execute(t, "", "-c", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "* flake8")
	assert.Contains(t, out, "style checks")
	assert.Contains(t, out, "3.13     pytest, flake8")
}

func TestListCommandJSON(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	out, _, err := execute(t, "", "--json", "-c", cfg, "list")
	require.NoError(t, err)

	var doc listJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Environments, 2)
	for _, env := range doc.Environments {
		assert.True(t, env.Default, env.Name)
	}
	require.Len(t, doc.Versions, 2)
	assert.Equal(t, "3.13", doc.Versions[1].Version)
}

func TestConfigNotFound(t *testing.T) {
	_, _, err := execute(t, "", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "list")
	require.Error(t, err)
	assert.Equal(t, model.ExitConfigNotFound, ExitCodeFor(err))
}

func TestIgnoresCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	out, _, err := execute(t, "", "-c", cfg, "ignores",
		"tests/google_calendar_tests/mock_services/foo.py", "gcsa/event.py")
	require.NoError(t, err)
	assert.Equal(t, "tests/google_calendar_tests/mock_services/foo.py: N802,N803\ngcsa/event.py: -\n", out)
}

func TestLintFilterCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)
	report := "tests/google_calendar_tests/mock_services/foo.py:3:5: N802 function name should be lowercase\n" +
		"gcsa/event.py:10:1: E302 expected 2 blank lines\n"

	out, _, err := execute(t, report, "-c", cfg, "lint-filter")
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, ExitCodeFor(err))
	assert.Equal(t, "gcsa/event.py:10:1: E302 expected 2 blank lines\n", out)

	out, _, err = execute(t, report[:strings.Index(report, "\n")+1], "-c", cfg, "lint-filter")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCoverageScanCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)
	dir := filepath.Dir(cfg)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gcsa"), 0o755))
	initPy := filepath.Join(dir, "gcsa", "__init__.py")
	eventPy := filepath.Join(dir, "gcsa", "event.py")
	require.NoError(t, os.WriteFile(initPy, []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(eventPy, []byte("x = 1\n\nif DEBUG:  # pragma: no cover\n"), 0o644))

	out, _, err := execute(t, "", "-c", cfg, "coverage-scan", initPy, eventPy)
	require.NoError(t, err)
	assert.Contains(t, out, initPy+": omitted\n")
	assert.Contains(t, out, eventPy+": 1 counted, 1 excluded, 1 blank (3 lines)\n")
}

func TestConvertCommand(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)
	output := filepath.Join(t.TempDir(), "out.yaml")

	_, stderr, err := execute(t, "", "-c", cfg, "convert", "-o", output)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote "+output)

	// The converted file loads back to the same environments.
	out, _, err := execute(t, "", "-c", output, "resolve", "3.13")
	require.NoError(t, err)
	assert.Equal(t, "pytest\nflake8\n", out)
}

// setupRunMatrix writes a matrix whose environments use a fake interpreter.
func setupRunMatrix(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a POSIX shell script")
	}
	python := filepath.Join(t.TempDir(), "python3")
	require.NoError(t, os.WriteFile(python, []byte(fakePython), 0o755))

	return writeMatrix(t, fmt.Sprintf(`envlist: [ok, bad]
environments:
  - name: ok
    basepython: %[1]s
    commands: ["sh -c 'echo hello {posargs}'"]
  - name: bad
    basepython: %[1]s
    commands: ["sh -c 'exit 2'", "sh -c 'echo unreachable'"]
`, python))
}

func TestRunCommand(t *testing.T) {
	cfg := setupRunMatrix(t)
	resultFile := filepath.Join(t.TempDir(), "result.json")
	metricsFile := filepath.Join(t.TempDir(), "envmatrix.prom")

	out, stderr, err := execute(t, "", "-c", cfg, "run",
		"--result-json", resultFile, "--metrics-file", metricsFile, "--", "world")
	require.Error(t, err)
	assert.Equal(t, model.ExitGeneralError, ExitCodeFor(err))
	assert.Contains(t, err.Error(), "1 of 2 environments failed")

	assert.Contains(t, out, "hello world")
	assert.NotContains(t, out, "unreachable")
	assert.Contains(t, out, "1 passed, 1 failed, 0 skipped")
	assert.Contains(t, stderr, "bad: commands> sh -c 'exit 2'")

	data, err := os.ReadFile(resultFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exitCode": 1`)

	data, err = os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `envmatrix_environment_status{env="bad",status="failed"} 1`)
}

func TestRunCommandJSON(t *testing.T) {
	cfg := setupRunMatrix(t)

	out, stderr, err := execute(t, "", "--json", "-c", cfg, "run", "-e", "ok")
	require.NoError(t, err)
	assert.Contains(t, stderr, "hello")

	var doc struct {
		Failed       bool `json:"failed"`
		Environments []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"environments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.False(t, doc.Failed)
	require.Len(t, doc.Environments, 1)
	assert.Equal(t, "ok", doc.Environments[0].Name)
	assert.Equal(t, "passed", doc.Environments[0].Status)
}

func TestRunCommandRejectsArgsBeforeDash(t *testing.T) {
	cfg := setupRunMatrix(t)

	_, _, err := execute(t, "", "-c", cfg, "run", "pytest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pass positional arguments after "--"`)
}

func TestRunCommandInvalidBackend(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	_, _, err := execute(t, "", "-c", cfg, "run", "--backend", "podman")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backend")
}

func TestRunCommandUnknownEnv(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)

	_, _, err := execute(t, "", "-c", cfg, "run", "-e", "nope")
	require.Error(t, err)
	assert.Equal(t, model.ExitUnknownEnv, ExitCodeFor(err))
}

func TestCleanCommandVirtualenvs(t *testing.T) {
	cfg := writeMatrix(t, testMatrix)
	envDir := filepath.Join(filepath.Dir(cfg), ".envmatrix")
	require.NoError(t, os.MkdirAll(filepath.Join(envDir, "pytest", "bin"), 0o755))

	out, _, err := execute(t, "", "-c", cfg, "clean", "--envs", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would remove virtualenvs "+envDir)
	assert.DirExists(t, envDir)

	out, _, err = execute(t, "", "-c", cfg, "clean", "--envs")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed virtualenvs "+envDir)
	assert.NoDirExists(t, envDir)
}

func TestDescribeContainer(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	got := describeContainer(docker.ContainerInfo{Name: "envmatrix-pytest-1a2b3c4d", Env: "pytest", CreatedAt: created})
	assert.Equal(t, "envmatrix-pytest-1a2b3c4d (env pytest, created "+created.Local().Format(time.RFC3339)+")", got)
}
