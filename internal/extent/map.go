package extent

import (
	"fmt"
	"sort"
)

// Map is the canonical extent-interval container: entries are kept sorted
// by Physical, no two adjacent entries ever intersect or touch-merge (every
// insert folds mergeable neighbours transitively), and lookups use binary
// search. A balanced tree would give better asymptotics on the "millions of
// blocks at most" extreme from spec.md §1, but a sorted slice is what the
// spec itself offers as the reference implementation choice (spec.md §9),
// and it keeps Compare-driven merge detection and complement generation
// straightforward.
type Map struct {
	entries []Extent
}

// NewMap returns an empty Map.
func NewMap() *Map { return &Map{} }

// Len returns the number of extents currently stored.
func (m *Map) Len() int { return len(m.entries) }

// Empty reports whether the map holds no extents.
func (m *Map) Empty() bool { return len(m.entries) == 0 }

// Clear removes every extent.
func (m *Map) Clear() { m.entries = m.entries[:0] }

// Entries returns the extents in physical order. The returned slice is a
// copy; callers may not mutate the map through it.
func (m *Map) Entries() []Extent {
	out := make([]Extent, len(m.entries))
	copy(out, m.entries)
	return out
}

// TotalLength sums the length of every stored extent.
func (m *Map) TotalLength() uint64 {
	var total uint64
	for _, e := range m.entries {
		total += e.Length
	}
	return total
}

// Bounds returns the minimum Physical and the maximum Physical+Length
// currently stored, or (0, 0) if the map is empty.
func (m *Map) Bounds() (minPhysical, maxPhysicalEnd uint64) {
	if len(m.entries) == 0 {
		return 0, 0
	}
	return m.entries[0].Physical, m.entries[len(m.entries)-1].End()
}

// lowerBound returns the index of the first entry with Physical >= physical.
func (m *Map) lowerBound(physical uint64) int {
	return sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Physical >= physical })
}

// upperBound returns the index of the first entry with Physical > physical.
func (m *Map) upperBound(physical uint64) int {
	return sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Physical > physical })
}

// Find returns the entry whose Physical equals physical, if any.
func (m *Map) Find(physical uint64) (Extent, bool) {
	i := m.lowerBound(physical)
	if i < len(m.entries) && m.entries[i].Physical == physical {
		return m.entries[i], true
	}
	return Extent{}, false
}

// FindContaining returns the entry that contains physical within
// [Physical, Physical+Length), if any.
func (m *Map) FindContaining(physical uint64) (Extent, bool) {
	i := m.upperBound(physical)
	if i == 0 {
		return Extent{}, false
	}
	e := m.entries[i-1]
	if physical < e.End() {
		return e, true
	}
	return Extent{}, false
}

// insertRaw inserts e at its sorted position without attempting any merge.
// Used internally by code paths (complement, transpose, append-style bulk
// ingestion) that know by construction that no adjacent entry can touch e.
func (m *Map) insertRaw(e Extent) {
	i := m.lowerBound(e.Physical)
	m.entries = append(m.entries, Extent{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
}

// InsertRaw is the exported form of insertRaw, for callers (analyzer,
// persistence reload) that are reconstructing an already-disjoint set of
// extents and do not want merge-detection overhead.
func (m *Map) InsertRaw(e Extent) { m.insertRaw(e) }

// Insert adds a single extent, merging transitively with up to its
// immediate predecessor and successor when they touch exactly (same tag,
// contiguous on both axes). Overlapping inserts are a programming error:
// the map's invariant forbids them and Insert panics if one is attempted.
func (m *Map) Insert(e Extent) Extent {
	i := m.lowerBound(e.Physical)

	// Check the "next" neighbour.
	if i < len(m.entries) {
		rel := Compare(e, m.entries[i])
		switch rel {
		case TouchBefore, TouchAfter:
			return m.mergeInto(i, e)
		case Intersect:
			panic(fmt.Sprintf("extent.Map.Insert: %v intersects existing %v", e, m.entries[i]))
		}
	}
	// Check the "previous" neighbour.
	if i > 0 {
		rel := Compare(m.entries[i-1], e)
		switch rel {
		case TouchBefore, TouchAfter:
			return m.mergeInto(i-1, e)
		case Intersect:
			panic(fmt.Sprintf("extent.Map.Insert: %v intersects existing %v", e, m.entries[i-1]))
		}
	}
	m.insertRaw(e)
	return e
}

// mergeInto merges e into the entry at index pos (which must exactly touch
// e), then checks one hop further on the side where e was attached for a
// further chain merge, exactly as ft_map<T>::merge does.
func (m *Map) mergeInto(pos int, e Extent) Extent {
	rel := Compare(m.entries[pos], e)
	switch rel {
	case TouchBefore:
		m.entries[pos].Length += e.Length
		if pos+1 < len(m.entries) && Compare(m.entries[pos], m.entries[pos+1]) == TouchBefore {
			m.entries[pos].Length += m.entries[pos+1].Length
			m.removeAt(pos + 1)
		}
		return m.entries[pos]
	case TouchAfter:
		m.entries[pos].Physical = e.Physical
		m.entries[pos].Logical = e.Logical
		m.entries[pos].Length += e.Length
		if pos > 0 && Compare(m.entries[pos-1], m.entries[pos]) == TouchBefore {
			m.entries[pos-1].Length += m.entries[pos].Length
			m.removeAt(pos)
			pos--
		}
		return m.entries[pos]
	default:
		panic("extent.Map.mergeInto: entries do not touch")
	}
}

// removeAt deletes the entry at index i.
func (m *Map) removeAt(i int) {
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
}

// Remove deletes the single stored extent with the given physical offset. It
// panics if no such exact entry exists: callers that want to remove a
// subrange of a larger extent must use RemoveRange instead.
func (m *Map) Remove(physical uint64) {
	i := m.lowerBound(physical)
	if i >= len(m.entries) || m.entries[i].Physical != physical {
		panic(fmt.Sprintf("extent.Map.Remove: no entry at physical=%d", physical))
	}
	m.removeAt(i)
}

// RemoveRange deletes [physical, physical+length) — which must be a subset
// of exactly one stored extent, with logical continuity matching that
// extent — splitting it into zero, one, or two residual pieces. It panics
// (a programming-error assertion, per spec.md §4.1) if the range is not a
// subset of a single existing entry.
func (m *Map) RemoveRange(physical, logical, length uint64) {
	i := m.upperBound(physical)
	if i == 0 {
		panic("extent.Map.RemoveRange: no covering entry")
	}
	i--
	last := m.entries[i]

	if last.Physical > physical ||
		last.Logical > logical ||
		physical-last.Physical != logical-last.Logical ||
		last.End() < physical+length {
		panic(fmt.Sprintf("extent.Map.RemoveRange: range phys=%d log=%d len=%d is not a subset of %v", physical, logical, length, last))
	}

	// Trim/erase the head piece.
	if last.Physical < physical {
		m.entries[i].Length = physical - last.Physical
	} else {
		m.removeAt(i)
	}

	// Re-insert the tail piece, if any.
	if last.End() > physical+length {
		newPhysical := physical + length
		newLogical := logical + length
		newLength := last.End() - newPhysical
		m.insertRaw(Extent{Physical: newPhysical, Logical: newLogical, Length: newLength, Tag: last.Tag})
	}
}

// RemoveFront shrinks the extent at the given physical offset by removing
// its first shrinkLength blocks, returning the updated entry and whether
// anything remains (false means the whole extent was consumed and removed).
func (m *Map) RemoveFront(physical, shrinkLength uint64) (Extent, bool) {
	i := m.lowerBound(physical)
	if i >= len(m.entries) || m.entries[i].Physical != physical {
		panic(fmt.Sprintf("extent.Map.RemoveFront: no entry at physical=%d", physical))
	}
	e := &m.entries[i]
	if shrinkLength > e.Length {
		panic("extent.Map.RemoveFront: shrinkLength exceeds extent length")
	}
	if shrinkLength == e.Length {
		m.removeAt(i)
		return Extent{}, false
	}
	e.Physical += shrinkLength
	e.Logical += shrinkLength
	e.Length -= shrinkLength
	return *e, true
}

// RemoveAll subtracts every block covered by other from m, splitting m's
// entries as needed. After this call no physical block of other remains in m.
func (m *Map) RemoveAll(other *Map) {
	if other == m {
		m.Clear()
		return
	}
	toRemove := IntersectAllAll(m, other, MatchBoth)
	for _, e := range toRemove.entries {
		m.RemoveRange(e.Physical, e.Logical, e.Length)
	}
}

// MatchMode selects how Intersect resolves the Logical field of an overlap.
type MatchMode int

const (
	// MatchPhysical1 returns the physical overlap with Logical taken from
	// the first extent.
	MatchPhysical1 MatchMode = iota
	// MatchPhysical2 returns the physical overlap with Logical taken from
	// the second extent.
	MatchPhysical2
	// MatchBoth returns the overlap only if both extents agree on the
	// physical-to-logical offset within the overlapping range.
	MatchBoth
)

// Intersect computes the overlap of a and b under the given match mode. The
// produced extent carries the tag of side 1 (MatchPhysical1, MatchBoth) or
// side 2 (MatchPhysical2).
func Intersect(a, b Extent, mode MatchMode) (Extent, bool) {
	end1, end2 := a.End(), b.End()
	if end1 <= b.Physical || a.Physical >= end2 {
		return Extent{}, false
	}
	switch mode {
	case MatchPhysical1, MatchPhysical2:
		physical := max(a.Physical, b.Physical)
		var logical uint64
		var tag Tag
		if mode == MatchPhysical1 {
			logical = a.Logical + (physical - a.Physical)
			tag = a.Tag
		} else {
			logical = b.Logical + (physical - b.Physical)
			tag = b.Tag
		}
		length := min(end1, end2) - physical
		return Extent{Physical: physical, Logical: logical, Length: length, Tag: tag}, true
	case MatchBoth:
		if int64(b.Logical)-int64(a.Logical) != int64(b.Physical)-int64(a.Physical) {
			return Extent{}, false
		}
		physical := max(a.Physical, b.Physical)
		logical := max(a.Logical, b.Logical)
		length := min(end1, end2) - physical
		return Extent{Physical: physical, Logical: logical, Length: length, Tag: a.Tag}, true
	default:
		return Extent{}, false
	}
}

// IntersectAll finds every intersection between a single extent e and map m,
// with e as side 1 and each entry of m as side 2 of Intersect, inserting the
// results into dst (without merging, since the caller of IntersectAll always
// wants exact subset extents to feed into RemoveRange).
func IntersectAll(dst *Map, m *Map, e Extent, mode MatchMode) bool {
	pos := m.upperBound(e.Physical)
	found := false
	if pos > 0 {
		if x, ok := Intersect(e, m.entries[pos-1], mode); ok {
			dst.insertRaw(x)
			found = true
		}
	}
	for ; pos < len(m.entries); pos++ {
		x, ok := Intersect(e, m.entries[pos], mode)
		if !ok {
			break
		}
		dst.insertRaw(x)
		found = true
	}
	return found
}

// IntersectAllAll computes every intersection between map1 and map2 under
// the given match mode and returns a fresh map of the results. It iterates
// the smaller of the two maps and uses bound seeks into the larger one, for
// O((n+m) log (n+m)) overall cost.
func IntersectAllAll(map1, map2 *Map, mode MatchMode) *Map {
	result := NewMap()
	if map1.Empty() || map2.Empty() {
		return result
	}

	iterate, other := map1, map2
	if map1.Len() > map2.Len() {
		iterate, other = map2, map1
		mode = transposeMode(mode)
	}

	lo, hi := other.Bounds()
	start := iterate.upperBound(lo)
	if start > 0 {
		start--
	}
	end := iterate.lowerBound(hi)
	if end < start {
		end = start
	}
	for i := start; i < len(iterate.entries) && i <= end; i++ {
		IntersectAll(result, other, iterate.entries[i], mode)
	}
	return result
}

func transposeMode(mode MatchMode) MatchMode {
	switch mode {
	case MatchPhysical1:
		return MatchPhysical2
	case MatchPhysical2:
		return MatchPhysical1
	default:
		return mode
	}
}

// Complement0PhysicalShift builds a fresh Map holding every physical
// interval in [0, devLength>>shiftLog2) that is NOT covered by v (v must
// already be sorted by Physical). Each produced extent has Logical ==
// Physical and Tag == TagDefault, and every input value is right-shifted by
// shiftLog2 blocks before being used.
func Complement0PhysicalShift(v Vector, shiftLog2 uint, devLength uint64) *Map {
	m := NewMap()
	var last uint64
	for _, e := range v {
		physical := e.Physical >> shiftLog2
		switch {
		case physical == last:
		case physical > last:
			m.entries = append(m.entries, Extent{Physical: last, Logical: last, Length: physical - last, Tag: TagDefault})
		default:
			panic("extent.Complement0PhysicalShift: vector is not sorted by Physical")
		}
		last = physical + (e.Length >> shiftLog2)
	}
	devLength >>= shiftLog2
	if last < devLength {
		m.entries = append(m.entries, Extent{Physical: last, Logical: last, Length: devLength - last, Tag: TagDefault})
	}
	return m
}

// Complement0LogicalShift builds a fresh Map holding every logical interval
// in [0, devLength>>shiftLog2) that is NOT covered by v (v must already be
// sorted by Logical). Each produced extent has Physical == Logical == the
// gap's logical offset and Tag == TagDefault, mirroring
// Complement0PhysicalShift on the logical axis: it finds the destinations
// not yet occupied by v.
func Complement0LogicalShift(v Vector, shiftLog2 uint, devLength uint64) *Map {
	m := NewMap()
	var last uint64
	for _, e := range v {
		logical := e.Logical >> shiftLog2
		switch {
		case logical == last:
		case logical > last:
			m.entries = append(m.entries, Extent{Physical: last, Logical: last, Length: logical - last, Tag: TagDefault})
		default:
			panic("extent.Complement0LogicalShift: vector is not sorted by Logical")
		}
		last = logical + (e.Length >> shiftLog2)
	}
	devLength >>= shiftLog2
	if last < devLength {
		m.entries = append(m.entries, Extent{Physical: last, Logical: last, Length: devLength - last, Tag: TagDefault})
	}
	return m
}

// Transpose returns a new Map where every extent's Physical and Logical are
// swapped, used to flip the direction of a relocation plan.
func (m *Map) Transpose() *Map {
	out := NewMap()
	for _, e := range m.entries {
		out.insertRaw(Extent{Physical: e.Logical, Logical: e.Physical, Length: e.Length, Tag: e.Tag})
	}
	return out
}
