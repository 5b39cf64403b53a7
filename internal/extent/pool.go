package extent

import "sort"

// Pool re-indexes the extents of a Map by length, to serve best-fit
// allocation requests: "give me the smallest available extent at least N
// blocks long". Built once from a snapshot of a Map's entries.
type Pool struct {
	// free is kept sorted by ascending Length, tie-broken by ascending
	// Physical, so the smallest-that-fits entry is always the first match.
	free []Extent
}

// NewPool builds a best-fit pool from the current contents of m.
func NewPool(m *Map) *Pool {
	p := &Pool{free: m.Entries()}
	p.sort()
	return p
}

func (p *Pool) sort() {
	sort.Slice(p.free, func(i, j int) bool {
		if p.free[i].Length != p.free[j].Length {
			return p.free[i].Length < p.free[j].Length
		}
		return p.free[i].Physical < p.free[j].Physical
	})
}

// Allocate picks the smallest free extent whose length is at least
// requestLength, splits off its low-physical requestLength blocks, and
// returns them (with Logical == Physical, as all pool entries originate
// from free space). The remainder, if any, is re-inserted into the pool. It
// reports false if no entry is large enough.
func (p *Pool) Allocate(requestLength uint64) (Extent, bool) {
	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].Length >= requestLength })
	if i == len(p.free) {
		return Extent{}, false
	}
	chosen := p.free[i]
	p.free = append(p.free[:i], p.free[i+1:]...)

	allocated := Extent{Physical: chosen.Physical, Logical: chosen.Physical, Length: requestLength, Tag: chosen.Tag}
	if remaining := chosen.Length - requestLength; remaining > 0 {
		remainder := Extent{
			Physical: chosen.Physical + requestLength,
			Logical:  chosen.Physical + requestLength,
			Length:   remaining,
			Tag:      chosen.Tag,
		}
		j := sort.Search(len(p.free), func(i int) bool {
			if p.free[i].Length != remainder.Length {
				return p.free[i].Length >= remainder.Length
			}
			return p.free[i].Physical >= remainder.Physical
		})
		p.free = append(p.free, Extent{})
		copy(p.free[j+1:], p.free[j:])
		p.free[j] = remainder
	}
	return allocated, true
}

// AllocateAll satisfies every request in requests (processed largest-first,
// so big requests get first pick of the best-fitting hole) by allocating
// from the pool. Every successfully placed request is removed from requests
// and inserted into renumbered with its real location preserved as Physical
// and its newly assigned slot recorded as the new Logical; requests that
// could not be placed are left untouched. The union of renumbered and the
// remaining requests always equals the initial requests map, physically.
func (p *Pool) AllocateAll(requests, renumbered *Map) {
	pending := requests.Entries()
	Vector(pending).SortByLengthDescending()

	for _, req := range pending {
		allocated, ok := p.Allocate(req.Length)
		if !ok {
			continue
		}
		requests.RemoveRange(req.Physical, req.Logical, req.Length)
		renumbered.insertRaw(Extent{
			Physical: req.Physical,
			Logical:  allocated.Physical,
			Length:   req.Length,
			Tag:      req.Tag,
		})
	}
}

// Remaining returns the current free extents held by the pool, sorted by
// physical offset.
func (p *Pool) Remaining() Vector {
	out := make(Vector, len(p.free))
	copy(out, p.free)
	out.SortByPhysical()
	return out
}
