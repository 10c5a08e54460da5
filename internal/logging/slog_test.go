package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_Levels verifies that Debug messages only appear in verbose mode.
func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{}).Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, Options{Verbose: true}).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

// TestNew_JSON verifies the JSON handler and the attribute helpers.
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithEnv(New(&buf, Options{JSON: true}), "pytest")
	logger.Info("command finished", Command("pytest -q"), ExitCode(1), Duration(1500*time.Millisecond), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pytest", entry[KeyEnv])
	assert.Equal(t, "pytest -q", entry[KeyCommand])
	assert.Equal(t, float64(1), entry[KeyExitCode])
	assert.Equal(t, "boom", entry[KeyError])
}

// TestErr_Nil verifies that a nil error adds no attribute.
func TestErr_Nil(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{JSON: true}).Info("ok", Err(nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, present := entry[KeyError]
	assert.False(t, present)
}
