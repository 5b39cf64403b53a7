package ioengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestTestBackendLoadsBothExtentFiles(t *testing.T) {
	dir := t.TempDir()
	loopPath := writeFixture(t, dir, "loop.txt",
		"length 20\nphysical\tlogical\tlength\tuser_data\n0\t0\t4\t2\n")
	freePath := writeFixture(t, dir, "free.txt",
		"length 20\nphysical\tlogical\tlength\tuser_data\n4\t4\t4\t0\n")

	b := NewTestBackend(loopPath, freePath, 20)
	require.NoError(t, b.Open())

	loopFile, freeSpace, mask, err := b.ReadExtents()
	require.NoError(t, err)
	require.Len(t, loopFile, 1)
	require.Len(t, freeSpace, 1)
	assert.Equal(t, uint64(0), loopFile[0].Physical)
	assert.Equal(t, uint64(4), freeSpace[0].Physical)
	assert.NotZero(t, mask)
	assert.Equal(t, uint64(20), b.DeviceLengthBytes())
}

func TestTestBackendReadExtentsBeforeOpenFails(t *testing.T) {
	b := NewTestBackend("loop.txt", "free.txt", 0)
	_, _, _, err := b.ReadExtents()
	assert.Error(t, err)
}

func TestTestBackendOpenFailsOnMissingFile(t *testing.T) {
	b := NewTestBackend("/nonexistent/loop.txt", "/nonexistent/free.txt", 0)
	assert.Error(t, b.Open())
}

func TestTestBackendTracksQueuedBytes(t *testing.T) {
	dir := t.TempDir()
	loopPath := writeFixture(t, dir, "loop.txt", "length 0\nphysical\tlogical\tlength\tuser_data\n")
	freePath := writeFixture(t, dir, "free.txt", "length 0\nphysical\tlogical\tlength\tuser_data\n")

	b := NewTestBackend(loopPath, freePath, 0)
	require.NoError(t, b.Open())

	require.NoError(t, b.CopyBytes(MoveRequest{Length: 7, Direction: DevToDev}))
	assert.Equal(t, uint64(7), b.QueuedBytes())
	require.NoError(t, b.FlushBytes())
	assert.Equal(t, uint64(0), b.QueuedBytes())
}
