// run.go implements the "envmatrix run" command.
//
// Orchestration steps:
//  1. Find the configuration (inside a snapshot worktree with --isolated)
//  2. Select environments: -e, else the --python version mapping, else envlist
//  3. Build the execution backend (local virtualenvs or Docker)
//  4. Run the environments sequentially
//  5. Write the optional result/metrics files and print the summary

package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/config"
	"github.com/shinji-kodama/envmatrix/internal/docker"
	"github.com/shinji-kodama/envmatrix/internal/metrics"
	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/report"
	"github.com/shinji-kodama/envmatrix/internal/resolver"
	"github.com/shinji-kodama/envmatrix/internal/runner"
	"github.com/shinji-kodama/envmatrix/internal/venv"
	"github.com/shinji-kodama/envmatrix/internal/worktree"
)

// Backend names accepted by --backend.
const (
	backendLocal  = "local"
	backendDocker = "docker"
)

// pythonAuto asks run to detect the interpreter version.
const pythonAuto = "auto"

// runFlags holds the flag values for the run command.
type runFlags struct {
	envs        string // -e: comma-separated environment names
	python      string // --python: interpreter version or "auto"
	recreate    bool   // --recreate: wipe environments before provisioning
	backend     string // --backend: local or docker
	image       string // --image: container image override
	isolated    bool   // --isolated: run in a snapshot worktree of HEAD
	resultJSON  string // --result-json: write results to this file
	metricsFile string // --metrics-file: write Prometheus textfile
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] [-- posargs...]",
		Short: "Provision environments and run their commands",
		Long: `Provision each selected environment in isolation and run its commands
in order. A failing environment does not stop the others.

Environment selection:
  -e pytest,flake8   run exactly these environments (ALL for every one)
  --python 3.13      run the environments bound to 3.13
  (neither)          run the default envlist

Arguments after "--" replace {posargs} in commands.

Examples:
  envmatrix run
  envmatrix run -e flake8
  envmatrix run --python auto
  envmatrix run --backend docker --python 3.12
  envmatrix run -e pytest -- -k test_event`,

		Args: func(cmd *cobra.Command, args []string) error {
			if dash := cmd.ArgsLenAtDash(); dash > 0 || (dash < 0 && len(args) > 0) {
				return model.NewCLIError(model.ExitGeneralError,
					fmt.Sprintf("unexpected arguments %v: pass positional arguments after \"--\"", args))
			}
			return nil
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			var posArgs []string
			if cmd.ArgsLenAtDash() >= 0 {
				posArgs = args[cmd.ArgsLenAtDash():]
			}
			return runRun(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, posArgs)
		},
	}

	cmd.Flags().StringVarP(&flags.envs, "env", "e", "", "Comma-separated environments to run (ALL for every environment)")
	cmd.Flags().StringVar(&flags.python, "python", "", `Interpreter version selecting environments and image ("auto" to detect)`)
	cmd.Flags().BoolVar(&flags.recreate, "recreate", false, "Recreate environments before provisioning")
	cmd.Flags().StringVar(&flags.backend, "backend", backendLocal, "Execution backend: local, docker")
	cmd.Flags().StringVar(&flags.image, "image", "", "Container image for the docker backend (default: python:<version>)")
	cmd.Flags().BoolVar(&flags.isolated, "isolated", false, "Run against a snapshot worktree of HEAD")
	cmd.Flags().StringVar(&flags.resultJSON, "result-json", "", "Write the run result as JSON to this file")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this file")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(ctx context.Context, stdout, stderr io.Writer, flags *runFlags, posArgs []string) error {
	if flags.backend != backendLocal && flags.backend != backendDocker {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid backend %q: valid values are %s, %s", flags.backend, backendLocal, backendDocker))
	}

	// Step 1: Locate the configuration, switching to a snapshot if asked.
	path, err := findConfigPath()
	if err != nil {
		return err
	}
	if flags.isolated {
		snapPath, cleanup, err := isolate(path)
		if err != nil {
			return err
		}
		defer cleanup()
		path = snapPath
	}

	m, err := config.LoadMatrix(path)
	if err != nil {
		return err
	}
	VerboseLog("Loaded %d environments from %s", len(m.Environments), m.Source)

	// Step 2: Determine the interpreter version and the environments.
	version := flags.python
	if version == pythonAuto {
		if version, err = venv.DetectVersion(ctx, venv.DefaultPython); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to detect the Python version", err)
		}
		VerboseLog("Detected Python %s", version)
	}

	envs, err := selectEnvs(m, flags.envs, version)
	if err != nil {
		return err
	}
	if len(envs) == 0 {
		fmt.Fprintln(stdout, "No environments to run.")
		return nil
	}
	VerboseLog("Selected environments: %v", resolver.Names(envs))

	// Step 3: Build the backend.
	backend, closeBackend, err := newBackend(ctx, m, flags, version)
	if err != nil {
		return err
	}
	defer closeBackend()

	// Step 4: Run the matrix. Command output streams to stderr in JSON
	// mode so that stdout carries only the result document.
	cmdOut := stdout
	if IsJSONOutput() {
		cmdOut = stderr
	}
	r := runner.New(backend,
		runner.WithLogger(Logger()),
		runner.WithOutput(cmdOut, stderr),
		runner.WithPosArgs(posArgs),
		runner.WithObserver(&progressPrinter{w: stderr}),
	)
	result := r.Run(ctx, envs)

	// Step 5: Outputs.
	if flags.resultJSON != "" {
		if err := report.WriteJSONFile(flags.resultJSON, result); err != nil {
			return err
		}
	}
	if flags.metricsFile != "" {
		rec := metrics.NewRecorder()
		rec.Observe(result)
		if err := rec.WriteFile(flags.metricsFile); err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		err = report.EncodeJSON(stdout, result)
	} else {
		err = report.Summary(stdout, result)
	}
	if err != nil {
		return err
	}

	if result.Failed() {
		msg := fmt.Sprintf("%d of %d environments failed", result.Count(model.StatusFailed), len(result.Results))
		if result.Interrupted {
			msg = "interrupted"
		}
		return model.NewCLIError(result.ExitCode(), msg)
	}
	return nil
}

// selectEnvs applies the selection precedence: explicit names, then the
// version mapping, then the default envlist.
func selectEnvs(m *model.Matrix, names, version string) ([]model.Environment, error) {
	switch {
	case names != "":
		return resolver.Select(m, resolver.SplitNames(names))
	case version != "":
		return resolver.Resolve(m, version)
	default:
		return resolver.Default(m)
	}
}

// newBackend builds the backend selected by --backend. The returned
// function releases its resources.
func newBackend(ctx context.Context, m *model.Matrix, flags *runFlags, version string) (runner.Backend, func(), error) {
	switch flags.backend {
	case backendDocker:
		cli, err := docker.NewClient()
		if err != nil {
			return nil, nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		VerboseLog("Connected to Docker daemon")
		b := docker.NewBackend(cli, m.RootDir, docker.Options{
			Image:   flags.image,
			Version: version,
			Logger:  Logger(),
		})
		return b, func() { _ = cli.Close() }, nil

	default:
		python := venv.DefaultPython
		if version != "" {
			python = venv.Interpreter(resolver.MajorMinor(version), venv.DefaultPython)
		}
		b := venv.New(m.RootDir, venv.Options{
			Python:   python,
			Recreate: flags.recreate,
			Logger:   Logger(),
		})
		return b, func() {}, nil
	}
}

// isolate creates a snapshot worktree of HEAD and returns the path of the
// configuration file inside it, plus a cleanup function removing it.
func isolate(path string) (string, func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, model.WrapCLIError(model.ExitGeneralError, "failed to resolve configuration path", err)
	}

	wm := worktree.NewManager()
	if wm.IsWorktree(filepath.Dir(abs)) {
		VerboseLog("Running from a linked worktree, snapshotting its HEAD")
	}
	snap, err := wm.CreateSnapshot(filepath.Dir(abs))
	if err != nil {
		return "", nil, err
	}
	VerboseLog("Created snapshot of %s at %s", snap.Commit, snap.Path)

	cleanup := func() {
		if err := wm.RemoveSnapshot(snap); err != nil {
			logger.Warn("failed to remove snapshot", "path", snap.Path, "error", err)
		}
	}

	// The repository root may be reported through a symlinked path.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		resolved = abs
	}
	snapPath, err := snap.Rebase(resolved)
	if err != nil {
		cleanup()
		return "", nil, model.WrapCLIError(model.ExitGitError, "configuration is not inside the repository", err)
	}
	return snapPath, cleanup, nil
}

// progressPrinter reports environment and command starts, tox style:
//
//	pytest: commands> pytest -x
type progressPrinter struct {
	w io.Writer
}

func (p *progressPrinter) EnvStarted(env model.Environment) {
	fmt.Fprintf(p.w, "%s: provisioning (%d deps)\n", env.Name, len(env.Deps))
}

func (p *progressPrinter) CommandStarted(env model.Environment, line string) {
	fmt.Fprintf(p.w, "%s: commands> %s\n", env.Name, line)
}

func (p *progressPrinter) EnvFinished(res model.EnvResult) {
	fmt.Fprintf(p.w, "%s: %s\n", res.Name, res.Status)
}
