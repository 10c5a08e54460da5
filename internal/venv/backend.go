package venv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shinji-kodama/envmatrix/internal/logging"
	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/runner"
)

const (
	// DirName is the directory under the matrix root holding all
	// virtual environments.
	DirName = ".envmatrix"

	// fingerprintFile records what was installed into an environment.
	fingerprintFile = ".envmatrix-deps"

	// DefaultPython is the interpreter used when neither the environment
	// nor the caller pins one.
	DefaultPython = "python3"

	// interruptGrace is how long a command may take to exit after
	// receiving an interrupt before it is killed.
	interruptGrace = 5 * time.Second
)

// Options configures a Backend.
type Options struct {
	// Python is the interpreter used for environments without basepython.
	Python string

	// BaseDir overrides <root>/.envmatrix.
	BaseDir string

	// Recreate removes existing environments before provisioning.
	Recreate bool

	Logger *slog.Logger
}

// Backend runs environments in local virtual environments.
type Backend struct {
	root     string
	baseDir  string
	python   string
	recreate bool
	logger   *slog.Logger
}

var _ runner.Backend = (*Backend)(nil)

// New creates a local backend for sources at root.
func New(root string, opts Options) *Backend {
	b := &Backend{
		root:     root,
		baseDir:  opts.BaseDir,
		python:   opts.Python,
		recreate: opts.Recreate,
		logger:   opts.Logger,
	}
	if b.baseDir == "" {
		b.baseDir = filepath.Join(root, DirName)
	}
	if b.python == "" {
		b.python = DefaultPython
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	return b
}

// Name implements runner.Backend.
func (b *Backend) Name() string { return "local" }

// BaseDir returns the directory holding all virtual environments.
func (b *Backend) BaseDir() string { return b.baseDir }

// Open implements runner.Backend. It only computes paths; nothing is
// created until Provision.
func (b *Backend) Open(_ context.Context, env model.Environment) (runner.Session, error) {
	if err := model.ValidateEnvName(env.Name); err != nil {
		return nil, err
	}
	envDir := filepath.Join(b.baseDir, env.Name)
	return &session{
		backend: b,
		env:     env,
		python:  Interpreter(env.BasePython, b.python),
		paths: runner.Paths{
			RootDir: b.root,
			EnvDir:  envDir,
			BinDir:  filepath.Join(envDir, binDirName()),
		},
	}, nil
}

// Interpreter returns the executable for a basepython value. Bare versions
// ("3.13") become "python3.13"; anything else is used as is. An empty
// basepython falls back to def.
func Interpreter(basePython, def string) string {
	switch {
	case basePython == "":
		return def
	case basePython[0] >= '0' && basePython[0] <= '9':
		return "python" + basePython
	default:
		return basePython
	}
}

func binDirName() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

type session struct {
	backend *Backend
	env     model.Environment
	python  string
	paths   runner.Paths
}

func (s *session) Paths() runner.Paths { return s.paths }

func (s *session) Close(context.Context) error { return nil }

// Provision creates the virtual environment if needed and installs the
// dependency list unless the recorded fingerprint already matches.
func (s *session) Provision(ctx context.Context) error {
	logger := logging.WithEnv(s.backend.logger, s.env.Name)

	if s.backend.recreate {
		logger.Debug("removing existing environment", logging.Path(s.paths.EnvDir))
		if err := os.RemoveAll(s.paths.EnvDir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", s.paths.EnvDir, err)
		}
	}

	envPython := filepath.Join(s.paths.BinDir, "python")
	if _, err := os.Stat(envPython); err != nil {
		logger.Info("creating virtual environment", logging.Path(s.paths.EnvDir), slog.String("python", s.python))
		if err := os.MkdirAll(s.backend.baseDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.backend.baseDir, err)
		}
		if _, err := runTool(ctx, s.backend.root, s.python, "-m", "venv", s.paths.EnvDir); err != nil {
			return err
		}
	}

	want := Fingerprint(s.python, s.env.Deps)
	fpPath := filepath.Join(s.paths.EnvDir, fingerprintFile)
	if got, err := os.ReadFile(fpPath); err == nil && strings.TrimSpace(string(got)) == want {
		logger.Debug("dependencies unchanged, skipping install")
		return nil
	}

	if len(s.env.Deps) > 0 {
		args := []string{"-m", "pip", "install", "--disable-pip-version-check"}
		for _, d := range s.env.Deps {
			args = append(args, d.InstallArgs()...)
		}
		logger.Info("installing dependencies", slog.Int("deps", len(s.env.Deps)))
		if _, err := runTool(ctx, s.backend.root, envPython, args...); err != nil {
			return err
		}
	}

	// Only written after a successful install, so a failed or interrupted
	// install is retried on the next run.
	if err := os.WriteFile(fpPath, []byte(want+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to record installed dependencies: %w", err)
	}
	return nil
}

// Run executes one command with the environment activated.
func (s *session) Run(ctx context.Context, inv runner.Invocation) (int, error) {
	env := s.environ(inv.Env)
	dir := inv.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.paths.RootDir, dir)
	}
	program, err := s.lookPath(inv.Args[0], dir, env)
	if err != nil {
		return -1, err
	}

	// #nosec G204: argv comes from the project's own configuration
	cmd := exec.CommandContext(ctx, program, inv.Args[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = interruptGrace

	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return signalExitCode(exitErr), nil
	case ctx.Err() != nil:
		return 128 + 2, nil
	default:
		return -1, err
	}
}

// environ builds the process environment: the host environment with the
// virtualenv activated, overlaid with extra.
func (s *session) environ(extra map[string]string) []string {
	vars := map[string]string{}
	var order []string
	set := func(k, v string) {
		if _, ok := vars[k]; !ok {
			order = append(order, k)
		}
		vars[k] = v
	}
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		set(k, v)
	}
	delete(vars, "PYTHONHOME")
	delete(vars, "PWD")
	set("VIRTUAL_ENV", s.paths.EnvDir)
	set("PATH", s.paths.BinDir+string(os.PathListSeparator)+vars["PATH"])
	for k, v := range extra {
		set(k, v)
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		if v, ok := vars[k]; ok {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// lookPath resolves name against the PATH of the activated environment.
// exec.LookPath only consults the parent process's PATH. Relative paths
// are resolved against the command's working directory.
func (s *session) lookPath(name, dir string, env []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		return name, nil
	}
	var path string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = kv[len("PATH="):]
		}
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: command not found in environment %s", name, s.env.Name)
}

// signalExitCode reports a process killed by a signal the way a shell
// does: 128 + the signal number.
func signalExitCode(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 128 + int(syscall.SIGINT)
}

// Fingerprint identifies an interpreter and dependency list. Two
// provisioning requests with the same fingerprint install the same thing.
func Fingerprint(python string, deps []model.Dependency) string {
	h := sha256.New()
	fmt.Fprintln(h, python)
	for _, d := range deps {
		fmt.Fprintln(h, d.Raw)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// runTool executes a provisioning tool (python, pip) and returns its stdout.
// Stderr is included in the error message for diagnostics.
func runTool(ctx context.Context, dir, name string, args ...string) (string, error) {
	// #nosec G204: args are constructed internally
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("%s %s failed", filepath.Base(name), strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, lastLines(stderrStr, 5))
		}
		return "", fmt.Errorf("%s: %w", message, err)
	}
	return stdout.String(), nil
}

// lastLines keeps the tail of long tool output, where pip puts the
// actual error.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
