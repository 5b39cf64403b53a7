package ioengine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstransform/fsremap/internal/extent"
)

func TestReadExtentFileParsesHeaderAndRows(t *testing.T) {
	input := "length 100\n" +
		"physical\tlogical\tlength\tuser_data\n" +
		"0\t10\t5\t2\n" +
		"20\t30\t1\t0\n"

	v, fileLength, err := ReadExtentFile(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), fileLength)
	require.Len(t, v, 2)
	assert.Equal(t, extent.Extent{Physical: 0, Logical: 10, Length: 5, Tag: extent.TagLoopFile}, v[0])
	assert.Equal(t, extent.Extent{Physical: 20, Logical: 30, Length: 1, Tag: extent.TagDefault}, v[1])
}

func TestReadExtentFileRejectsMalformedHeader(t *testing.T) {
	_, _, err := ReadExtentFile(strings.NewReader("not a header\n"))
	assert.Error(t, err)
}

func TestReadExtentFileRejectsWrongColumnCount(t *testing.T) {
	input := "length 0\nphysical\tlogical\tlength\tuser_data\n1\t2\t3\n"
	_, _, err := ReadExtentFile(strings.NewReader(input))
	assert.Error(t, err)
}

func TestReadExtentFileSkipsBlankLines(t *testing.T) {
	input := "length 10\n\nphysical\tlogical\tlength\tuser_data\n\n0\t0\t1\t0\n"
	v, _, err := ReadExtentFile(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, v, 1)
}

func TestWriteExtentFileRoundTrips(t *testing.T) {
	v := extent.Vector{
		{Physical: 0, Logical: 10, Length: 5, Tag: extent.TagLoopFile},
		{Physical: 20, Logical: 30, Length: 1, Tag: extent.TagDevice},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteExtentFile(&buf, v))

	got, fileLength, err := ReadExtentFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(31), fileLength) // last entry: max(20,30)+1 = 31
	assert.Equal(t, v, got)
}

func TestWriteExtentFileEmptyVector(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExtentFile(&buf, nil))
	got, fileLength, err := ReadExtentFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fileLength)
	assert.Empty(t, got)
}
