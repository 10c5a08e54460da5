package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shinji-kodama/envmatrix/internal/logging"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// closeTimeout bounds Session.Close after the run context is cancelled,
// so interrupted containers are still removed.
const closeTimeout = 30 * time.Second

// Observer receives progress notifications. All methods are called from the
// goroutine running the matrix, in order.
type Observer interface {
	EnvStarted(env model.Environment)
	CommandStarted(env model.Environment, line string)
	EnvFinished(result model.EnvResult)
}

// Runner executes environments through a Backend.
type Runner struct {
	backend  Backend
	logger   *slog.Logger
	stdout   io.Writer
	stderr   io.Writer
	posArgs  []string
	observer Observer
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput sets where command output is streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) { r.stdout, r.stderr = stdout, stderr }
}

// WithPosArgs sets the values substituted for {posargs}.
func WithPosArgs(args []string) Option {
	return func(r *Runner) { r.posArgs = append([]string(nil), args...) }
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// New creates a Runner for backend.
func New(backend Backend, opts ...Option) *Runner {
	r := &Runner{
		backend: backend,
		logger:  logging.Discard(),
		stdout:  io.Discard,
		stderr:  io.Discard,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes envs sequentially and returns the aggregate result.
// A failing environment never prevents later ones from running; only
// context cancellation does.
func (r *Runner) Run(ctx context.Context, envs []model.Environment) *model.MatrixResult {
	started := r.now()
	result := &model.MatrixResult{Started: started}

	for i, env := range envs {
		if ctx.Err() != nil {
			result.Interrupted = true
			for _, rest := range envs[i:] {
				result.Results = append(result.Results, model.EnvResult{Name: rest.Name, Status: model.StatusSkipped})
			}
			break
		}

		res := r.RunEnv(ctx, env)
		result.Results = append(result.Results, res)
		if ctx.Err() != nil {
			result.Interrupted = true
		}
	}

	result.Duration = r.now().Sub(started)
	r.logger.Info("matrix finished",
		slog.Int("passed", result.Count(model.StatusPassed)),
		slog.Int("failed", result.Count(model.StatusFailed)),
		slog.Int("skipped", result.Count(model.StatusSkipped)),
		logging.Duration(result.Duration),
	)
	return result
}

// RunEnv provisions env and runs its commands.
func (r *Runner) RunEnv(ctx context.Context, env model.Environment) model.EnvResult {
	logger := logging.WithEnv(r.logger, env.Name).With(slog.String(logging.KeyBackend, r.backend.Name()))
	if r.observer != nil {
		r.observer.EnvStarted(env)
	}

	started := r.now()
	res := r.runEnv(ctx, env, logger)
	res.Duration = r.now().Sub(started)

	logger.Info("environment finished",
		logging.Status(res.Status.String()),
		logging.Phase(string(res.Phase)),
		logging.Duration(res.Duration),
	)
	if r.observer != nil {
		r.observer.EnvFinished(res)
	}
	return res
}

func (r *Runner) runEnv(ctx context.Context, env model.Environment, logger *slog.Logger) model.EnvResult {
	res := model.EnvResult{Name: env.Name, Phase: model.PhaseProvision}

	session, err := r.backend.Open(ctx, env)
	if err != nil {
		logger.Error("failed to open session", logging.Err(err))
		res.Status = model.StatusFailed
		res.Error = err.Error()
		return res
	}
	defer func() {
		// The run context may already be cancelled; cleanup still gets
		// its own deadline.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Warn("failed to close session", logging.Err(err))
		}
	}()

	logger.Debug("provisioning", slog.Int("deps", len(env.Deps)))
	if err := session.Provision(ctx); err != nil {
		logger.Error("provisioning failed", logging.Err(err))
		res.Status = model.StatusFailed
		res.Error = fmt.Sprintf("provisioning failed: %v", err)
		return res
	}

	res.Phase = model.PhaseCommands
	res.Status = model.StatusPassed
	vars := Vars{EnvName: env.Name, Paths: session.Paths(), PosArgs: r.posArgs}
	cmdEnv := expandEnv(env, vars)

	for _, line := range env.Commands {
		if ctx.Err() != nil {
			res.Status = model.StatusFailed
			res.Error = "interrupted"
			return res
		}

		cmdRes, err := r.runCommand(ctx, session, env, line, vars, cmdEnv, logger)
		res.Commands = append(res.Commands, cmdRes)
		if err == nil && !cmdRes.Failed() {
			continue
		}

		res.Status = model.StatusFailed
		if res.Error == "" {
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Error = fmt.Sprintf("command %q exited with code %d", cmdRes.Command, cmdRes.ExitCode)
			}
		}
		if !env.IgnoreErrors || errors.Is(ctx.Err(), context.Canceled) {
			return res
		}
	}
	return res
}

// commandEnv is the working directory and extra variables shared by every
// command of an environment, with substitutions applied.
type commandEnv struct {
	dir    string
	setenv map[string]string
}

func expandEnv(env model.Environment, vars Vars) commandEnv {
	out := commandEnv{dir: Expand(env.ChangeDir, vars)}
	if len(env.SetEnv) > 0 {
		out.setenv = make(map[string]string, len(env.SetEnv))
		for k, v := range env.SetEnv {
			out.setenv[k] = Expand(v, vars)
		}
	}
	return out
}

// runCommand parses and executes one command line.
func (r *Runner) runCommand(ctx context.Context, session Session, env model.Environment, line string, vars Vars, cmdEnv commandEnv, logger *slog.Logger) (model.CommandResult, error) {
	cmd, err := ParseCommand(line, vars)
	if err != nil {
		return model.CommandResult{Command: line, ExitCode: -1}, err
	}
	if r.observer != nil {
		r.observer.CommandStarted(env, cmd.Line)
	}

	logger.Debug("running command", logging.Command(cmd.Line))
	started := r.now()
	code, err := session.Run(ctx, Invocation{
		Args:   cmd.Args,
		Dir:    cmdEnv.dir,
		Env:    cmdEnv.setenv,
		Stdout: r.stdout,
		Stderr: r.stderr,
	})
	res := model.CommandResult{
		Command:  cmd.Line,
		ExitCode: code,
		Ignored:  cmd.IgnoreExit,
		Duration: r.now().Sub(started),
	}
	if err != nil {
		// A command that cannot even be started is never ignorable.
		res.ExitCode = -1
		res.Ignored = false
		logger.Error("command could not be started", logging.Command(cmd.Line), logging.Err(err))
		return res, fmt.Errorf("command %q could not be started: %w", cmd.Line, err)
	}

	logger.Debug("command finished", logging.Command(cmd.Line), logging.ExitCode(code), logging.Duration(res.Duration))
	return res, nil
}
