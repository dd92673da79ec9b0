package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	f := pid.New(t.TempDir(), "thermowatch")

	require.NoError(t, f.Acquire())

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// Re-acquiring from the owning process is allowed.
	require.NoError(t, f.Acquire())

	require.NoError(t, f.Release())
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, f.Release())
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	f := pid.New(dir, "thermowatch")

	// The parent process is alive for the duration of the test.
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := f.Acquire()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	// Not ours, so Release leaves it alone.
	require.NoError(t, f.Release())
	_, err = os.Stat(f.Path())
	assert.NoError(t, err)
}

func TestAcquireReplacesGarbage(t *testing.T) {
	f := pid.New(t.TempDir(), "thermowatch")
	require.NoError(t, os.WriteFile(f.Path(), []byte("not a pid"), 0o600))

	assert.NoError(t, f.Acquire())
}

func TestAcquireCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run", "thermowatch")
	f := pid.New(dir, "agent")

	require.NoError(t, f.Acquire())
	assert.Equal(t, filepath.Join(dir, "agent.pid"), f.Path())
}
