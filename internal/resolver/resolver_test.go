package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// gcsaMatrix builds the gcsa environment matrix in memory: "3.6" through
// "3.12" run only pytest, "3.13" runs the full toolchain.
func gcsaMatrix() *model.Matrix {
	m := &model.Matrix{
		EnvList: []string{"pytest", "flake8", "coverage", "sphinx", "mypy"},
		Environments: []model.Environment{
			{Name: "pytest", Commands: []string{"pytest"}},
			{Name: "flake8", Commands: []string{"flake8 gcsa tests setup.py"}},
			{Name: "coverage", Commands: []string{"pytest --cov=gcsa tests"}},
			{Name: "sphinx", Commands: []string{"sphinx-build -W docs/source docs/build"}},
			{Name: "mypy", Commands: []string{"mypy gcsa"}},
		},
	}
	for _, v := range []string{"3.6", "3.7", "3.8", "3.9", "3.10", "3.11", "3.12"} {
		m.Versions = append(m.Versions, model.VersionBinding{Version: v, Envs: []string{"pytest"}})
	}
	m.Versions = append(m.Versions, model.VersionBinding{
		Version: "3.13",
		Envs:    []string{"pytest", "flake8", "sphinx", "mypy"},
	})
	return m
}

// TestResolve_OlderVersionsRunPytestOnly checks every version from 3.6 to 3.12.
func TestResolve_OlderVersionsRunPytestOnly(t *testing.T) {
	m := gcsaMatrix()
	for _, v := range []string{"3.6", "3.7", "3.8", "3.9", "3.10", "3.11", "3.12"} {
		t.Run(v, func(t *testing.T) {
			envs, err := Resolve(m, v)
			require.NoError(t, err)
			assert.Equal(t, []string{"pytest"}, Names(envs))
		})
	}
}

// TestResolve_LatestVersionRunsFullToolchain checks the four-element binding
// and its order.
func TestResolve_LatestVersionRunsFullToolchain(t *testing.T) {
	envs, err := Resolve(gcsaMatrix(), "3.13")
	require.NoError(t, err)
	assert.Equal(t, []string{"pytest", "flake8", "sphinx", "mypy"}, Names(envs))
}

// TestResolve_UnknownVersion checks that an absent key is a lookup error and
// returns no environments.
func TestResolve_UnknownVersion(t *testing.T) {
	envs, err := Resolve(gcsaMatrix(), "2.7")
	require.Error(t, err)
	assert.Nil(t, envs)
	assert.True(t, errors.Is(err, model.ErrLookup))

	var le *model.LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, model.LookupVersion, le.Kind)
	assert.Equal(t, "2.7", le.Key)
}

// TestResolve_PatchVersionFallsBack verifies the major.minor fallback.
func TestResolve_PatchVersionFallsBack(t *testing.T) {
	envs, err := Resolve(gcsaMatrix(), "3.13.2")
	require.NoError(t, err)
	assert.Equal(t, []string{"pytest", "flake8", "sphinx", "mypy"}, Names(envs))

	_, err = Resolve(gcsaMatrix(), "2.7.18")
	assert.True(t, errors.Is(err, model.ErrLookup))
}

// TestSelect covers explicit selection, de-duplication, ALL and unknown names.
func TestSelect(t *testing.T) {
	m := gcsaMatrix()

	envs, err := Select(m, []string{"mypy", "pytest", "mypy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mypy", "pytest"}, Names(envs))

	envs, err = Select(m, []string{AllEnvs})
	require.NoError(t, err)
	assert.Equal(t, m.EnvNames(), Names(envs))

	_, err = Select(m, []string{"pytest", "docs"})
	var le *model.LookupError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, model.LookupEnvironment, le.Kind)
	assert.Equal(t, "docs", le.Key)
}

// TestDefault returns the envlist.
func TestDefault(t *testing.T) {
	envs, err := Default(gcsaMatrix())
	require.NoError(t, err)
	assert.Equal(t, []string{"pytest", "flake8", "coverage", "sphinx", "mypy"}, Names(envs))
}

// TestSplitNamesAndMajorMinor covers the small parsing helpers.
func TestSplitNamesAndMajorMinor(t *testing.T) {
	assert.Equal(t, []string{"pytest", "flake8"}, SplitNames(" pytest, ,flake8 "))
	assert.Nil(t, SplitNames(""))

	assert.Equal(t, "3.13", MajorMinor("3.13.2"))
	assert.Equal(t, "3.13", MajorMinor("3.13"))
	assert.Equal(t, "3", MajorMinor("3"))
}
