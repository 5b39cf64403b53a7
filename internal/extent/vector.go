package extent

import "sort"

// Vector is an insertion-ordered sequence of extents, used for ingesting
// extent lists from an extent source before they are folded into a Map.
type Vector []Extent

// Append adds e to the vector, fusing it with the last entry when they
// touch exactly (same physical+logical continuation, same tag). This is the
// append0-style fast path used while reading extents off an I/O backend,
// where entries already arrive close to physical order.
func (v *Vector) Append(e Extent) {
	if n := len(*v); n > 0 {
		last := &(*v)[n-1]
		if Compare(*last, e) == TouchBefore {
			last.Length += e.Length
			return
		}
	}
	*v = append(*v, e)
}

// SortByPhysical sorts the vector in place by ascending physical offset.
func (v Vector) SortByPhysical() {
	sort.Slice(v, func(i, j int) bool { return v[i].Physical < v[j].Physical })
}

// SortByLogical sorts the vector in place by ascending logical offset.
func (v Vector) SortByLogical() {
	sort.Slice(v, func(i, j int) bool { return v[i].Logical < v[j].Logical })
}

// SortByLengthDescending sorts the vector in place by descending length,
// breaking ties by ascending physical offset so the ordering is deterministic.
func (v Vector) SortByLengthDescending() {
	sort.Slice(v, func(i, j int) bool {
		if v[i].Length != v[j].Length {
			return v[i].Length > v[j].Length
		}
		return v[i].Physical < v[j].Physical
	})
}

// TotalLength sums the length of every extent in the vector.
func (v Vector) TotalLength() uint64 {
	var total uint64
	for _, e := range v {
		total += e.Length
	}
	return total
}

// AppendAll appends every extent of other onto v, applying the same
// touch-merge rule as Append.
func (v *Vector) AppendAll(other Vector) {
	for _, e := range other {
		v.Append(e)
	}
}
