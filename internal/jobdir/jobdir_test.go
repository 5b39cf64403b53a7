package jobdir

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstransform/fsremap/internal/config"
	"github.com/fstransform/fsremap/internal/extent"
)

func withTempHome(t *testing.T) {
	t.Helper()
	config.SetHome(t.TempDir())
	t.Cleanup(func() { config.SetHome("") })
}

func TestAcquireAllocatesFirstFreeID(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	assert.Equal(t, uint64(1), jd.ID())
	assert.DirExists(t, jd.Path())
}

func TestAcquireSkipsLockedDirectories(t *testing.T) {
	withTempHome(t)

	first, err := Acquire(0)
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(0)
	require.NoError(t, err)
	defer second.Release()

	assert.NotEqual(t, first.ID(), second.ID())
}

func TestAcquireRequestedIDFailsWhenAlreadyLocked(t *testing.T) {
	withTempHome(t)

	first, err := Acquire(5)
	require.NoError(t, err)
	defer first.Release()
	assert.Equal(t, uint64(5), first.ID())

	_, err = Acquire(5)
	assert.Error(t, err)
}

func TestAcquireCanReuseIDAfterRelease(t *testing.T) {
	withTempHome(t)

	first, err := Acquire(3)
	require.NoError(t, err)
	require.NoError(t, first.Release())

	second, err := Acquire(3)
	require.NoError(t, err)
	defer second.Release()
	assert.Equal(t, uint64(3), second.ID())
}

func TestSaveAndLoadRelocationRoundTrips(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	m := extent.NewMap()
	m.Insert(extent.Extent{Physical: 0, Logical: 10, Length: 4, Tag: extent.TagLoopFile})
	m.Insert(extent.Extent{Physical: 20, Logical: 30, Length: 1, Tag: extent.TagDevice})

	require.NoError(t, jd.SaveRelocation(m))

	loaded, err := jd.LoadRelocation()
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), loaded.Entries())
}

func TestSaveAndLoadStorageRoundTrips(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	m := extent.NewMap()
	m.Insert(extent.Extent{Physical: 5, Logical: 5, Length: 2, Tag: extent.TagStorage})

	require.NoError(t, jd.SaveStorage(m))

	loaded, err := jd.LoadStorage()
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), loaded.Entries())
}

func TestLoadRelocationWithoutPriorSaveReturnsEmptyMap(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	loaded, err := jd.LoadRelocation()
	require.NoError(t, err)
	assert.True(t, loaded.Empty())
}

func TestSaveAndLoadDescriptorRoundTrips(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	d := &Descriptor{
		ID:             jd.ID(),
		RunToken:       "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		ForceRun:       true,
		SimulateRun:    false,
		ClearFreeSpace: "all",
	}
	require.NoError(t, jd.SaveDescriptor(d))

	loaded, err := jd.LoadDescriptor()
	require.NoError(t, err)
	assert.Equal(t, d, loaded)
}

func TestLoadDescriptorWithoutPriorSaveReturnsZeroValue(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(0)
	require.NoError(t, err)
	defer jd.Release()

	loaded, err := jd.LoadDescriptor()
	require.NoError(t, err)
	assert.Equal(t, &Descriptor{}, loaded)
}

func TestNewRunTokenIsUniquePerCall(t *testing.T) {
	entropy := rand.New(rand.NewSource(1))
	a := NewRunToken(entropy)
	b := NewRunToken(entropy)
	assert.NotEqual(t, a, b)
}

func TestReleaseUnlocksAndAllowsReacquire(t *testing.T) {
	withTempHome(t)

	jd, err := Acquire(9)
	require.NoError(t, err)
	require.NoError(t, jd.Release())
	require.NoError(t, jd.Release()) // idempotent

	again, err := Acquire(9)
	require.NoError(t, err)
	defer again.Release()
}
