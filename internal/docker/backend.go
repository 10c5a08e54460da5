// backend.go implements runner.Backend on top of Docker containers.
//
// Lifecycle of one environment:
//
//	Open       pull image if missing → create container (sleep infinity,
//	           sources bind-mounted at /workspace) → start
//	Provision  exec `python -m venv` and `pip install` inside the container
//	Run        exec each command, demultiplexing stdout/stderr
//	Close      force-remove the container
package docker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/envmatrix/internal/logging"
	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/runner"
)

const (
	// WorkspaceDir is where the sources are mounted inside the container.
	WorkspaceDir = "/workspace"

	// envRoot holds the per-environment virtualenvs inside the container.
	envRoot = "/opt/envmatrix"

	// containerPath is the PATH of the official python images, with the
	// virtualenv prepended at exec time.
	containerPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Options configures a Backend.
type Options struct {
	// Image overrides image selection for every environment.
	Image string

	// Version is the requested interpreter version ("3.13"), used to pick
	// the image for environments without basepython.
	Version string

	Logger *slog.Logger
}

// Backend runs each environment in its own container.
type Backend struct {
	client *Client
	root   string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

var _ runner.Backend = (*Backend)(nil)

// NewBackend creates a container backend for sources at root (an absolute
// host path).
func NewBackend(c *Client, root string, opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Backend{client: c, root: root, opts: opts, logger: logger, now: time.Now}
}

// Name implements runner.Backend.
func (b *Backend) Name() string { return "docker" }

// Open creates and starts the environment's container.
func (b *Backend) Open(ctx context.Context, env model.Environment) (runner.Session, error) {
	if err := model.ValidateEnvName(env.Name); err != nil {
		return nil, err
	}
	logger := logging.WithEnv(b.logger, env.Name)
	ref := ImageFor(b.opts.Image, env.BasePython, b.opts.Version)

	if err := b.ensureImage(ctx, ref, logger); err != nil {
		return nil, err
	}

	name, err := containerName(env.Name)
	if err != nil {
		return nil, err
	}

	resp, err := b.client.api.ContainerCreate(ctx,
		&container.Config{
			Image:      ref,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: WorkspaceDir,
			Labels: BuildLabels(ContainerLabels{
				Env:       env.Name,
				RootDir:   b.root,
				CreatedAt: b.now(),
			}),
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: b.root,
				Target: WorkspaceDir,
			}},
			// Lets the container stop promptly on interrupt.
			Init: boolPtr(true),
		},
		nil, nil, name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container for %s: %w", env.Name, err)
	}

	s := &session{backend: b, env: env, id: resp.ID, logger: logger}
	if err := b.client.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to start container %s: %w", name, err)
	}
	logger.Debug("container started", slog.String("container", name), slog.String("image", ref))
	return s, nil
}

// ensureImage pulls ref unless it is already present locally.
func (b *Backend) ensureImage(ctx context.Context, ref string, logger *slog.Logger) error {
	images, err := b.client.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(images) > 0 {
		return nil
	}

	logger.Info("pulling image", slog.String("image", ref))
	rc, err := b.client.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull only completes once the progress stream is fully read.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// containerName returns a unique, recognizable name such as
// "envmatrix-pytest-1a2b3c4d".
func containerName(env string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate container name: %w", err)
	}
	return fmt.Sprintf("envmatrix-%s-%s", env, hex.EncodeToString(buf)), nil
}

func boolPtr(b bool) *bool { return &b }

type session struct {
	backend *Backend
	env     model.Environment
	id      string
	logger  *slog.Logger
}

func (s *session) Paths() runner.Paths {
	envDir := path.Join(envRoot, s.env.Name)
	return runner.Paths{
		RootDir: WorkspaceDir,
		EnvDir:  envDir,
		BinDir:  path.Join(envDir, "bin"),
	}
}

// Provision installs the dependency list into a fresh virtualenv. The
// container is new for every run, so there is nothing to reuse.
func (s *session) Provision(ctx context.Context) error {
	paths := s.Paths()
	if err := s.mustExec(ctx, []string{"python", "-m", "venv", paths.EnvDir}); err != nil {
		return err
	}
	if len(s.env.Deps) == 0 {
		return nil
	}

	args := []string{path.Join(paths.BinDir, "python"), "-m", "pip", "install", "--disable-pip-version-check"}
	for _, d := range s.env.Deps {
		args = append(args, d.InstallArgs()...)
	}
	s.logger.Info("installing dependencies", slog.Int("deps", len(s.env.Deps)))
	return s.mustExec(ctx, args)
}

// mustExec runs a provisioning command and turns a non-zero exit into an
// error carrying the tail of its stderr.
func (s *session) mustExec(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	code, err := s.exec(ctx, runner.Invocation{Args: args, Stdout: io.Discard, Stderr: &stderr})
	if err != nil {
		return err
	}
	if code != 0 {
		msg := strings.TrimSpace(stderr.String())
		if lines := strings.Split(msg, "\n"); len(lines) > 5 {
			msg = strings.Join(lines[len(lines)-5:], "\n")
		}
		return fmt.Errorf("%s exited with code %d: %s", strings.Join(args, " "), code, msg)
	}
	return nil
}

// Run implements runner.Session.
func (s *session) Run(ctx context.Context, inv runner.Invocation) (int, error) {
	return s.exec(ctx, inv)
}

// exec runs one command through the Docker exec API and returns its exit
// code once the output stream is drained.
func (s *session) exec(ctx context.Context, inv runner.Invocation) (int, error) {
	api := s.backend.client.api
	workDir := inv.Dir
	if !path.IsAbs(workDir) {
		workDir = path.Join(WorkspaceDir, workDir)
	}
	created, err := api.ContainerExecCreate(ctx, s.id, container.ExecOptions{
		Cmd:          inv.Args,
		WorkingDir:   workDir,
		Env:          s.execEnv(inv.Env),
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	hijacked, err := api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer hijacked.Close()

	// Closing the connection unblocks StdCopy when the run is interrupted.
	stop := context.AfterFunc(ctx, hijacked.Close)
	defer stop()

	stdout, stderr := orDiscard(inv.Stdout), orDiscard(inv.Stderr)
	if _, err := stdcopy.StdCopy(stdout, stderr, hijacked.Reader); err != nil && ctx.Err() == nil {
		return -1, fmt.Errorf("failed to read exec output: %w", err)
	}
	if ctx.Err() != nil {
		return 128 + 2, nil
	}

	inspect, err := api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return inspect.ExitCode, nil
}

// execEnv activates the virtualenv and adds extra, sorted for stable argv.
func (s *session) execEnv(extra map[string]string) []string {
	paths := s.Paths()
	env := []string{
		"VIRTUAL_ENV=" + paths.EnvDir,
		"PATH=" + paths.BinDir + ":" + containerPath,
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// Close force-removes the container along with its anonymous volumes.
func (s *session) Close(ctx context.Context) error {
	err := s.backend.client.api.ContainerRemove(ctx, s.id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", s.id, err)
	}
	return nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
