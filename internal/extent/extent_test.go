package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareDisjoint(t *testing.T) {
	a := Extent{Physical: 0, Logical: 0, Length: 5}
	b := Extent{Physical: 10, Logical: 10, Length: 5}
	assert.Equal(t, Before, Compare(a, b))
	assert.Equal(t, After, Compare(b, a))
	assert.False(t, Compare(a, b).Mergeable())
}

func TestCompareTouchMerges(t *testing.T) {
	a := Extent{Physical: 0, Logical: 100, Length: 5, Tag: TagLoopFile}
	b := Extent{Physical: 5, Logical: 105, Length: 3, Tag: TagLoopFile}
	assert.Equal(t, TouchBefore, Compare(a, b))
	assert.Equal(t, TouchAfter, Compare(b, a))
	assert.True(t, Compare(a, b).Mergeable())
}

func TestCompareTouchButLogicalGapDoesNotMerge(t *testing.T) {
	a := Extent{Physical: 0, Logical: 100, Length: 5, Tag: TagLoopFile}
	b := Extent{Physical: 5, Logical: 999, Length: 3, Tag: TagLoopFile}
	assert.Equal(t, Before, Compare(a, b))
}

func TestCompareTouchButTagMismatchDoesNotMerge(t *testing.T) {
	a := Extent{Physical: 0, Logical: 100, Length: 5, Tag: TagLoopFile}
	b := Extent{Physical: 5, Logical: 105, Length: 3, Tag: TagDevice}
	assert.Equal(t, Before, Compare(a, b))
}

func TestCompareOverlapIsIntersect(t *testing.T) {
	a := Extent{Physical: 0, Length: 10}
	b := Extent{Physical: 5, Length: 10}
	assert.Equal(t, Intersect, Compare(a, b))
	assert.Equal(t, Intersect, Compare(b, a))
}

func TestCompareSamePhysicalIsIntersect(t *testing.T) {
	a := Extent{Physical: 0, Length: 10}
	b := Extent{Physical: 0, Length: 3}
	assert.Equal(t, Intersect, Compare(a, b))
}

func TestEndAndLogicalEnd(t *testing.T) {
	e := Extent{Physical: 10, Logical: 20, Length: 5}
	assert.Equal(t, uint64(15), e.End())
	assert.Equal(t, uint64(25), e.LogicalEnd())
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "DEVICE", TagDevice.String())
	assert.Equal(t, "LOOP-FILE", TagLoopFile.String())
	assert.Equal(t, "ZERO-FILE", TagZeroFile.String())
	assert.Equal(t, "STORAGE", TagStorage.String())
	assert.Equal(t, "DEFAULT", TagDefault.String())
}
