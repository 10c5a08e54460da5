package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

func sampleResult() *model.MatrixResult {
	return &model.MatrixResult{
		Started:  time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		Duration: 14400 * time.Millisecond,
		Results: []model.EnvResult{
			{Name: "pytest", Status: model.StatusPassed, Phase: model.PhaseCommands, Duration: 12300 * time.Millisecond,
				Commands: []model.CommandResult{{Command: "pytest", Duration: 12 * time.Second}}},
			{Name: "flake8", Status: model.StatusFailed, Phase: model.PhaseCommands, Duration: 2100 * time.Millisecond,
				Error:    `command "flake8 gcsa" exited with code 1`,
				Commands: []model.CommandResult{{Command: "flake8 gcsa", ExitCode: 1}}},
			{Name: "mypy", Status: model.StatusSkipped},
		},
	}
}

// TestSummary checks the plain-text rendering used when output is not a
// terminal (a bytes.Buffer never gets colors).
func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "summary\n")
	assert.Contains(t, out, "  pytest  OK       (12.3s)\n")
	assert.Contains(t, out, "  flake8  FAIL     (2.1s)  command \"flake8 gcsa\" exited with code 1\n")
	assert.Contains(t, out, "  mypy    SKIPPED\n")
	assert.Contains(t, out, "1 passed, 1 failed, 1 skipped in 14.4s")
	assert.NotContains(t, out, "\x1b[", "no ANSI escapes for non-terminals")
}

func TestSummary_Interrupted(t *testing.T) {
	res := sampleResult()
	res.Interrupted = true

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, res))
	assert.Contains(t, buf.String(), "(interrupted)")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "850ms", formatDuration(850*time.Millisecond))
	assert.Equal(t, "12.3s", formatDuration(12300*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, WriteJSONFile(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got resultJSON
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Failed)
	assert.Equal(t, 1, got.ExitCode)
	require.Len(t, got.Environments, 3)
	assert.Equal(t, "flake8", got.Environments[1].Name)
	assert.Equal(t, "failed", got.Environments[1].Status)
	assert.Equal(t, 1, got.Environments[1].Commands[0].ExitCode)
	assert.Equal(t, 12.3, got.Environments[0].DurationSecs)
	assert.Empty(t, got.Environments[2].Commands)
}
