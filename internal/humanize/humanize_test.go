package humanize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrettySizeScalesByKibibyteFactors(t *testing.T) {
	v, unit := PrettySize(1536)
	assert.InDelta(t, 1.5, v, 0.001)
	assert.Equal(t, "kilo", unit)
}

func TestPrettySizeLeavesSmallValuesUnscaled(t *testing.T) {
	v, unit := PrettySize(512)
	assert.Equal(t, float64(512), v)
	assert.Equal(t, "", unit)
}

func TestPrettySizeStringFormatsBytesWithoutUnitPrefix(t *testing.T) {
	assert.Equal(t, "512.00 bytes", PrettySizeString(512))
}

func TestPrettySizeStringFormatsWithUnitPrefix(t *testing.T) {
	assert.Equal(t, "1.00 megabytes", PrettySizeString(1024*1024))
}

func TestCountAddsThousandsSeparators(t *testing.T) {
	assert.Equal(t, "1,234,567 blocks", Count(1234567, "blocks"))
}

func TestParseSizePlainDecimal(t *testing.T) {
	n, err := ParseSize("4096")
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), n)
}

func TestParseSizeKiloSuffix(t *testing.T) {
	n, err := ParseSize("64k")
	require.NoError(t, err)
	assert.Equal(t, uint64(64*1024), n)
}

func TestParseSizeMegaSuffix(t *testing.T) {
	n, err := ParseSize("2M")
	require.NoError(t, err)
	assert.Equal(t, uint64(2*1024*1024), n)
}

func TestParseSizeZeroWithSuffixIsZero(t *testing.T) {
	n, err := ParseSize("0G")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestParseSizeRejectsEmptyString(t *testing.T) {
	_, err := ParseSize("")
	assert.Error(t, err)
}

func TestParseSizeRejectsGarbageDigits(t *testing.T) {
	_, err := ParseSize("abcM")
	assert.Error(t, err)
}

func TestParseSizeRejectsOverflow(t *testing.T) {
	_, err := ParseSize("99999999999999G")
	assert.Error(t, err)
}

func TestParseSizeTrimsWhitespace(t *testing.T) {
	n, err := ParseSize("  128k  ")
	require.NoError(t, err)
	assert.Equal(t, uint64(128*1024), n)
}
