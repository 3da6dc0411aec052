package processor

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecEngineExportsExecutionEnv(t *testing.T) {
	requireShell(t)
	clk := clock.NewTestClock()

	// The test clock starts 2019-01-01T00:00:00Z, so the window from
	// testParameters is exactly one minute back plus the 1ms tick.
	command := `sh -c 'test "$METRONOME_PROCESSOR_ID" = "processor-1" && ` +
		`test "$METRONOME_RANGE_FROM" = "2018-12-31T23:59:00.001Z" && ` +
		`test "$METRONOME_RANGE_TO" = "2019-01-01T00:00:00.000Z"'`

	engine, err := NewExecEngine(command, 10*time.Second, clk, nil)
	require.NoError(t, err)

	assert.NoError(t, engine.Execute(context.Background(), "processor-1", testParameters(clk)))
}

func TestExecEngineWritesPayloadToStdin(t *testing.T) {
	requireShell(t)
	clk := clock.NewTestClock()

	engine, err := NewExecEngine(`sh -c 'grep -q processor-1'`, 10*time.Second, clk, nil)
	require.NoError(t, err)

	assert.NoError(t, engine.Execute(context.Background(), "processor-1", testParameters(clk)))
}

func TestExecEngineCapturesStderr(t *testing.T) {
	requireShell(t)

	engine, err := NewExecEngine(`sh -c 'echo boom >&2; exit 3'`, 10*time.Second, clock.NewTestClock(), nil)
	require.NoError(t, err)

	err = engine.Execute(context.Background(), "processor-1", testParameters(clock.NewTestClock()))
	require.Error(t, err)
	assert.True(t, errors.IsEngineExecutionError(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestExecEngineMissingBinary(t *testing.T) {
	engine, err := NewExecEngine("metronome-no-such-binary --flag", time.Second, clock.NewTestClock(), nil)
	require.NoError(t, err)

	err = engine.Execute(context.Background(), "processor-1", testParameters(clock.NewTestClock()))
	require.Error(t, err)
	assert.True(t, errors.IsEngineExecutionError(err))
}

func TestNewExecEngineValidation(t *testing.T) {
	_, err := NewExecEngine("", time.Second, clock.NewTestClock(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = NewExecEngine(`sh -c 'unterminated`, time.Second, clock.NewTestClock(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}
