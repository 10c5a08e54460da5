package docker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/runner"
)

func newTestBackend(engine *fakeEngine, opts Options) *Backend {
	b := NewBackend(&Client{api: engine}, "/home/dev/gcsa", opts)
	b.now = func() time.Time { return time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC) }
	return b
}

func pytestEnv(t *testing.T) model.Environment {
	t.Helper()
	dep, err := model.ParseDependency("pytest")
	require.NoError(t, err)
	return model.Environment{Name: "pytest", Deps: []model.Dependency{dep}, BasePython: "python3.13"}
}

// TestOpen_PullsAndCreatesContainer verifies image selection, labels and
// the workspace mount.
func TestOpen_PullsAndCreatesContainer(t *testing.T) {
	engine := newFakeEngine()
	b := newTestBackend(engine, Options{Version: "3.12"})

	s, err := b.Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"python:3.13"}, engine.pulled)
	require.Len(t, engine.created, 1)
	cfg := engine.created[0]
	assert.Equal(t, "python:3.13", cfg.Image)
	assert.Equal(t, WorkspaceDir, cfg.WorkingDir)
	assert.Equal(t, ManagedByValue, cfg.Labels[LabelManagedBy])
	assert.Equal(t, "pytest", cfg.Labels[LabelEnv])
	assert.Equal(t, "/home/dev/gcsa", cfg.Labels[LabelRootDir])

	require.Len(t, engine.hostConfig[0].Mounts, 1)
	m := engine.hostConfig[0].Mounts[0]
	assert.Equal(t, mount.TypeBind, m.Type)
	assert.Equal(t, "/home/dev/gcsa", m.Source)
	assert.Equal(t, WorkspaceDir, m.Target)

	assert.Equal(t, []string{"ctr1"}, engine.started)
	assert.Equal(t, "/opt/envmatrix/pytest/bin", s.Paths().BinDir)
}

// TestOpen_SkipsPullForLocalImage does not pull images that already exist.
func TestOpen_SkipsPullForLocalImage(t *testing.T) {
	engine := newFakeEngine()
	engine.images = []string{"python:3.13"}

	_, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)
	assert.Empty(t, engine.pulled)
}

// TestProvision_InstallsIntoVirtualenv checks the provisioning commands.
func TestProvision_InstallsIntoVirtualenv(t *testing.T) {
	engine := newFakeEngine()
	s, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	require.NoError(t, s.Provision(context.Background()))
	require.Len(t, engine.execs, 2)
	assert.Equal(t, []string{"python", "-m", "venv", "/opt/envmatrix/pytest"}, engine.execs[0].Cmd)
	assert.Equal(t, []string{"/opt/envmatrix/pytest/bin/python", "-m", "pip", "install", "--disable-pip-version-check", "pytest"}, engine.execs[1].Cmd)
}

// TestProvision_FailureCarriesStderr surfaces pip's error output.
func TestProvision_FailureCarriesStderr(t *testing.T) {
	engine := newFakeEngine()
	install := "/opt/envmatrix/pytest/bin/python -m pip install --disable-pip-version-check pytest"
	engine.exitCodes[install] = 1
	engine.stderr[install] = "ERROR: No matching distribution found for pytest\n"

	s, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	err = s.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No matching distribution")
}

// TestRun_ExecutesInWorkspace verifies working directory, environment and
// exit code propagation.
func TestRun_ExecutesInWorkspace(t *testing.T) {
	engine := newFakeEngine()
	engine.exitCodes["pytest -x"] = 1

	s, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	var out bytes.Buffer
	code, err := s.Run(context.Background(), runner.Invocation{
		Args:   []string{"pytest", "-x"},
		Dir:    "tests",
		Env:    map[string]string{"PYTHONHASHSEED": "0", "A": "1"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Equal(t, "ok\n", out.String())

	exec := engine.execs[len(engine.execs)-1]
	assert.Equal(t, "/workspace/tests", exec.WorkingDir)
	assert.Equal(t, []string{
		"VIRTUAL_ENV=/opt/envmatrix/pytest",
		"PATH=/opt/envmatrix/pytest/bin:" + containerPath,
		"A=1",
		"PYTHONHASHSEED=0",
	}, exec.Env)
}

// TestRun_AbsoluteDir keeps an already expanded {toxinidir}/docs path.
func TestRun_AbsoluteDir(t *testing.T) {
	engine := newFakeEngine()
	s, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), runner.Invocation{Args: []string{"sphinx-build"}, Dir: "/workspace/docs"})
	require.NoError(t, err)
	assert.Equal(t, "/workspace/docs", engine.execs[len(engine.execs)-1].WorkingDir)
}

// TestClose_RemovesContainer force-removes the container.
func TestClose_RemovesContainer(t *testing.T) {
	engine := newFakeEngine()
	s, err := newTestBackend(engine, Options{}).Open(context.Background(), pytestEnv(t))
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, []string{"ctr1"}, engine.removed)
}

// TestListManagedContainers filters by label and strips the name prefix.
func TestListManagedContainers(t *testing.T) {
	engine := newFakeEngine()
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	engine.listed = []container.Summary{
		{
			ID:    "abc",
			Names: []string{"/envmatrix-pytest-1a2b3c4d"},
			State: "running",
			Labels: BuildLabels(ContainerLabels{
				Env:       "pytest",
				RootDir:   "/home/dev/gcsa",
				CreatedAt: created,
			}),
		},
		{
			// Labels that do not parse are skipped.
			ID:     "def",
			Names:  []string{"/envmatrix-broken"},
			Labels: map[string]string{LabelManagedBy: ManagedByValue, LabelEnv: "pytest"},
		},
	}

	got, err := ListManagedContainers(context.Background(), &Client{api: engine}, "/home/dev/gcsa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "envmatrix-pytest-1a2b3c4d", got[0].Name)
	assert.Equal(t, "pytest", got[0].Env)
	assert.True(t, created.Equal(got[0].CreatedAt))
	assert.ElementsMatch(t, []string{FilterLabel(), LabelRootDir + "=/home/dev/gcsa"}, engine.listFilter)
}

// TestListManagedContainers_DaemonError maps to the docker exit code.
func TestListManagedContainers_DaemonError(t *testing.T) {
	engine := newFakeEngine()
	engine.listErr = errors.New("connection refused")

	_, err := ListManagedContainers(context.Background(), &Client{api: engine}, "")
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitDockerNotRunning, cliErr.Code)
}

func TestRemoveContainer(t *testing.T) {
	engine := newFakeEngine()
	require.NoError(t, RemoveContainer(context.Background(), &Client{api: engine}, "abc"))
	assert.Equal(t, []string{"abc"}, engine.removed)
}
