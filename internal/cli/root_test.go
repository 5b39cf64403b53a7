package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstransform/fsremap/internal/config"
)

func execRoot(t *testing.T, args ...string) error {
	t.Helper()
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func TestQuietAndVerboseAreMutuallyExclusive(t *testing.T) {
	err := execRoot(t, "-q", "-v", "dev", "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestInvalidLogColorRejected(t *testing.T) {
	err := execRoot(t, "--log-color=rainbow", "dev", "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-color")
}

func TestInvalidLogFormatRejected(t *testing.T) {
	err := execRoot(t, "--log-format=nonsense", "dev", "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-format")
}

func TestInvalidIOBackendRejected(t *testing.T) {
	err := execRoot(t, "--io=magic", "dev", "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--io")
}

func TestInvalidClearModeRejected(t *testing.T) {
	err := execRoot(t, "--x-clear=everything", "dev", "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--x-clear")
}

func TestTooFewArgsRejected(t *testing.T) {
	err := execRoot(t, "dev")
	assert.Error(t, err)
}

func TestJobDirFlagOverridesConfigHome(t *testing.T) {
	defer config.SetHome("")
	dir := t.TempDir()

	// --io=self-test avoids touching a real device and lets
	// PersistentPreRunE's config.SetHome side effect run before runRemap fails
	// on whatever comes after (self-test backend always succeeds opening).
	_ = execRoot(t, "--job-dir="+dir, "--io=self-test", "dev", "loop")
	assert.Equal(t, dir, config.Home())
}
