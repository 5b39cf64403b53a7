package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorAppendFusesTouchingRuns(t *testing.T) {
	var v Vector
	v.Append(Extent{Physical: 0, Logical: 0, Length: 5, Tag: TagLoopFile})
	v.Append(Extent{Physical: 5, Logical: 5, Length: 5, Tag: TagLoopFile})
	require.Len(t, v, 1)
	assert.Equal(t, uint64(10), v[0].Length)
}

func TestVectorAppendKeepsDisjointRunsSeparate(t *testing.T) {
	var v Vector
	v.Append(Extent{Physical: 0, Logical: 0, Length: 5, Tag: TagLoopFile})
	v.Append(Extent{Physical: 100, Logical: 100, Length: 5, Tag: TagLoopFile})
	assert.Len(t, v, 2)
}

func TestVectorSortByPhysical(t *testing.T) {
	v := Vector{
		{Physical: 20},
		{Physical: 5},
		{Physical: 10},
	}
	v.SortByPhysical()
	assert.Equal(t, []uint64{5, 10, 20}, physicals(v))
}

func TestVectorSortByLogical(t *testing.T) {
	v := Vector{
		{Logical: 20},
		{Logical: 5},
		{Logical: 10},
	}
	v.SortByLogical()
	assert.Equal(t, uint64(5), v[0].Logical)
	assert.Equal(t, uint64(10), v[1].Logical)
	assert.Equal(t, uint64(20), v[2].Logical)
}

func TestVectorSortByLengthDescendingBreaksTiesByPhysical(t *testing.T) {
	v := Vector{
		{Physical: 10, Length: 5},
		{Physical: 0, Length: 5},
		{Physical: 0, Length: 20},
	}
	v.SortByLengthDescending()
	assert.Equal(t, uint64(20), v[0].Length)
	assert.Equal(t, uint64(5), v[1].Length)
	assert.Equal(t, uint64(0), v[1].Physical)
	assert.Equal(t, uint64(10), v[2].Physical)
}

func TestVectorTotalLength(t *testing.T) {
	v := Vector{{Length: 3}, {Length: 4}, {Length: 5}}
	assert.Equal(t, uint64(12), v.TotalLength())
}

func TestVectorAppendAll(t *testing.T) {
	var v Vector
	v.Append(Extent{Physical: 0, Logical: 0, Length: 5})
	other := Vector{{Physical: 5, Logical: 5, Length: 5}, {Physical: 50, Logical: 50, Length: 1}}
	v.AppendAll(other)
	assert.Len(t, v, 2)
	assert.Equal(t, uint64(10), v[0].Length)
}

func physicals(v Vector) []uint64 {
	out := make([]uint64, len(v))
	for i, e := range v {
		out[i] = e.Physical
	}
	return out
}
