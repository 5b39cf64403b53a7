// Package analyzer implements the engine's analysis phase (spec.md §4.3,
// component C5): given the loop-file's physical extents, the device's free
// space, and the device length, it derives the unified relocation map and
// the candidate primary-storage regions that the rest of the engine
// consumes.
package analyzer

import (
	"math/bits"

	"github.com/sirupsen/logrus"

	"github.com/fstransform/fsremap/internal/extent"
	"github.com/fstransform/fsremap/internal/ferr"
)

// Result is everything the analysis phase hands off to the storage planner
// and the relocation scheduler.
type Result struct {
	// RelocationMap is the unified map: each entry tags the source of the
	// data currently at Physical (TagLoopFile meaning "the target logical
	// block is here and must move to Logical", TagDevice meaning "this is
	// old-filesystem data that must move to Logical"). Empty means no work
	// remains.
	RelocationMap *extent.Map

	// PrimaryCandidates lists the free, invariant, contiguous, page-aligned
	// device regions usable as in-device scratch (spec.md §3 "primary
	// storage descriptor").
	PrimaryCandidates extent.Vector

	// WorkCount is the total number of blocks still pending relocation.
	WorkCount uint64

	// EffBlockSizeLog2 is the log2 of the effective block size derived from
	// the input extents.
	EffBlockSizeLog2 uint

	// DevLengthBlocks is the device length in units of the effective block size.
	DevLengthBlocks uint64
}

// EffBlockSizeLog2 derives the effective block size (spec.md §3) from the
// bitwise OR of every physical, logical, and length value observed across
// both vectors, plus the device length in bytes, and returns its
// trailing-zero count. An all-zero bitmask (degenerate empty input) yields 0.
func EffBlockSizeLog2(loopFileExtents, freeSpaceExtents extent.Vector, devLengthBytes uint64) uint {
	var mask uint64 = devLengthBytes
	for _, v := range [2]extent.Vector{loopFileExtents, freeSpaceExtents} {
		for _, e := range v {
			mask |= e.Physical | e.Logical | e.Length
		}
	}
	if mask == 0 {
		return 0
	}
	return uint(bits.TrailingZeros64(mask))
}

// checkOverflow mirrors the original program's narrowing-cast guard: the
// device's block count must fit in the signed range of the engine's integer
// type. We model that width as 63 usable bits (mirroring T being a
// signed/unsigned counterpart pair), so a block count whose top bit is set
// is rejected with ferr.Overflow before any I/O is attempted (spec.md §4.3
// "Failures", and scenario S4).
func checkOverflow(devLengthBlocks uint64) error {
	if devLengthBlocks > uint64(1)<<63-1 {
		return ferr.New(ferr.Overflow, "device length %d blocks exceeds the engine's addressable range", devLengthBlocks)
	}
	return nil
}

func pageSizeBlocks(pageSize int, blockSizeLog2 uint) uint64 {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return uint64(pageSize) >> blockSizeLog2
}

// alignExtent trims e on both ends to pageSizeBlocks alignment, returning
// the trimmed extent and its new length (0 if nothing survives).
func alignExtent(e extent.Extent, pageSizeBlocksM1 uint64) (extent.Extent, uint64) {
	if pageSizeBlocksM1 == 0 {
		return e, e.Length
	}
	end := e.End()
	newPhysical := (e.Physical + pageSizeBlocksM1) &^ pageSizeBlocksM1
	newEnd := end &^ pageSizeBlocksM1
	if newEnd <= newPhysical {
		return e, 0
	}
	e.Logical += newPhysical - e.Physical
	e.Physical = newPhysical
	e.Length = newEnd - newPhysical
	return e, e.Length
}

// Analyze runs the eight-step analysis algorithm of spec.md §4.3. pageSize
// is the RAM page size in bytes (0 selects a 4096-byte default); log, if
// non-nil, receives three Info lines: the effective block size, the number
// of blocks to relocate, and the primary storage located.
func Analyze(loopFileExtents, freeSpaceExtents extent.Vector, devLengthBytes uint64, pageSize int, log *logrus.Logger) (*Result, error) {
	blockLog2 := EffBlockSizeLog2(loopFileExtents, freeSpaceExtents, devLengthBytes)
	devLengthBlocks := devLengthBytes >> blockLog2
	if err := checkOverflow(devLengthBlocks); err != nil {
		return nil, err
	}
	if log != nil {
		log.Infof("analysis: effective block size = %d bytes", uint64(1)<<blockLog2)
	}

	// Step 1: LOOP-FILE holes, i.e. logical destinations not yet covered by
	// the loop-file.
	loopSortedByLogical := append(extent.Vector(nil), loopFileExtents...)
	loopSortedByLogical.SortByLogical()
	loopHoles := extent.Complement0LogicalShift(loopSortedByLogical, blockLog2, devLengthBytes)

	// Step 0: LOOP-FILE extents, sorted by physical.
	loopSortedByPhysical := append(extent.Vector(nil), loopFileExtents...)
	loopSortedByPhysical.SortByPhysical()
	loopMap := extent.NewMap()
	for _, e := range loopSortedByPhysical {
		loopMap.InsertRaw(extent.Extent{
			Physical: e.Physical >> blockLog2,
			Logical:  e.Logical >> blockLog2,
			Length:   e.Length >> blockLog2,
			Tag:      extent.TagLoopFile,
		})
	}

	// Step 0: FREE-SPACE extents, logical forced to physical so contiguous
	// holes merge on insert.
	freeMap := extent.NewMap()
	for _, e := range freeSpaceExtents {
		physical := e.Physical >> blockLog2
		length := e.Length >> blockLog2
		if length == 0 {
			continue
		}
		freeMap.Insert(extent.Extent{Physical: physical, Logical: physical, Length: length, Tag: extent.TagDefault})
	}

	// Step 0: DEVICE extents = physical complement of LOOP-FILE ∪ FREE-SPACE.
	union := append(extent.Vector(nil), loopFileExtents...)
	union.AppendAll(freeSpaceExtents)
	union.SortByPhysical()
	devMap := extent.Complement0PhysicalShift(union, blockLog2, devLengthBytes)

	// Step 2a: DEVICE blocks already sitting at a free logical hole are invariant.
	invariantDev := extent.IntersectAllAll(devMap, loopHoles, extent.MatchBoth)
	devMap.RemoveAll(invariantDev)
	loopHoles.RemoveAll(invariantDev)

	// Step 2b: best-fit allocate the rest of loopHoles to the rest of devMap.
	pool := extent.NewPool(loopHoles)
	renumbered := extent.NewMap()
	pool.AllocateAll(devMap, renumbered)
	if !devMap.Empty() {
		return nil, ferr.New(ferr.NoSpace, "%d blocks of DEVICE data could not be fit into any LOOP-FILE hole", devMap.TotalLength())
	}
	devMap = renumbered

	// Step 2.1: loop-file blocks already at their destination are invariant; forget them.
	var workCount uint64
	for _, e := range loopMap.Entries() {
		if e.Physical == e.Logical {
			loopMap.Remove(e.Physical)
			continue
		}
		workCount += e.Length
	}

	// Step 3: merge renumbered DEVICE extents into the surviving LOOP-FILE map.
	for _, e := range devMap.Entries() {
		workCount += e.Length
		e.Tag = extent.TagDevice
		loopMap.InsertRaw(e)
	}
	relocationMap := loopMap

	if log != nil {
		log.Infof("analysis completed: %d blocks must be relocated", workCount)
	}

	// Step 4: primary-storage candidates = FREE-SPACE ∩ original loopHoles,
	// filtered by size threshold and page-aligned.
	primaryCandidates := extent.IntersectAllAll(freeMap, loopHoles, extent.MatchBoth)
	pageBlocks := pageSizeBlocks(pageSize, blockLog2)
	threshold := workCount / 1024
	if cap := pageBlocks << 12; threshold > cap {
		threshold = cap
	}
	if threshold < pageBlocks {
		threshold = pageBlocks
	}

	var primary extent.Vector
	var pageBlocksM1 uint64
	if pageBlocks > 0 {
		pageBlocksM1 = pageBlocks - 1
	}
	for _, e := range primaryCandidates.Entries() {
		if e.Length < threshold {
			continue
		}
		trimmed, newLen := alignExtent(e, pageBlocksM1)
		if newLen < threshold {
			continue
		}
		primary = append(primary, trimmed)
	}

	if log != nil {
		var total uint64
		for _, e := range primary {
			total += e.Length
		}
		log.Infof("located %d blocks (%d fragments) available as primary storage", total, len(primary))
	}

	return &Result{
		RelocationMap:     relocationMap,
		PrimaryCandidates: primary,
		WorkCount:         workCount,
		EffBlockSizeLog2:  blockLog2,
		DevLengthBlocks:   devLengthBlocks,
	}, nil
}
