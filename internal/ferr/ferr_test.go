package ferr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsUnreportedError(t *testing.T) {
	err := New(NoSpace, "need %d more blocks", 5)
	assert.Equal(t, NoSpace, err.Kind)
	assert.Equal(t, "need 5 more blocks", err.Message)
	assert.False(t, err.Reported)
	assert.Equal(t, "NO_SPACE: need 5 more blocks", err.Error())
}

func TestWrapIncludesCauseInMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IO, cause, "writing extents")
	assert.Contains(t, err.Error(), "IO")
	assert.Contains(t, err.Error(), "writing extents")
	assert.Contains(t, err.Error(), "disk full")
}

func TestMarkReportedSetsFlagOnFerr(t *testing.T) {
	err := New(Internal, "boom")
	marked := MarkReported(err)

	var fe *Error
	require.ErrorAs(t, marked, &fe)
	assert.True(t, fe.Reported)
	assert.True(t, IsReported(marked))
}

func TestMarkReportedWrapsPlainErrors(t *testing.T) {
	marked := MarkReported(errors.New("plain failure"))

	var fe *Error
	require.ErrorAs(t, marked, &fe)
	assert.Equal(t, Internal, fe.Kind)
	assert.True(t, fe.Reported)
}

func TestIsReportedFalseForFreshError(t *testing.T) {
	err := New(Overflow, "too big")
	assert.False(t, IsReported(err))
}

func TestIsReportedFalseForNonFerr(t *testing.T) {
	assert.False(t, IsReported(errors.New("ordinary")))
}

func TestErrorsAsFindsFerrThroughStandardWrap(t *testing.T) {
	inner := New(TooLarge, "exceeds capacity")
	wrapped := fmt.Errorf("context: %w", inner)

	var fe *Error
	require.ErrorAs(t, wrapped, &fe)
	assert.Equal(t, TooLarge, fe.Kind)
}
