// Package storage implements the scratch-budget planner (spec.md §4.4,
// component C6): it decides the total scratch budget, takes the analyzer's
// primary-storage candidates as primary storage (page-aligned and capped to
// 1/4 of addressable memory, but not to the budget), and sizes the
// secondary-storage file for whatever part of the budget the primary
// fragments don't cover.
package storage

import (
	"math"

	"github.com/fstransform/fsremap/internal/extent"
)

const oneMebibyte = 1024 * 1024

// Plan is the result of budget planning: the device fragments to use as
// primary storage, and the length of the secondary-storage file to create.
type Plan struct {
	PrimaryExtents  extent.Vector
	SecondaryLength uint64
}

// Budget carries the caller's overrides (0 selects auto-detection) and
// environment facts the formula in spec.md §4.4 needs.
type Budget struct {
	// UserTotal, if non-zero, is the user-requested --storage total in bytes.
	UserTotal uint64
	// FreeRAM is the currently free system RAM in bytes (0 if unknown).
	FreeRAM uint64
	// WorkCount is the number of blocks pending relocation.
	WorkCount uint64
	// BlockSize is the effective block size in bytes.
	BlockSize uint64
	// PageSize is the RAM page size in bytes.
	PageSize uint64
}

// addressableQuarter returns 1/4 of the addressable memory of a 64-bit
// process, i.e. 1/4 of math.MaxUint64+1, matching the original's
// "(ft_size)-1 >> 2) + 1" on a 64-bit ft_size.
func addressableQuarter() uint64 {
	return (math.MaxUint64 >> 2) + 1
}

func roundUp(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}
	return (n + multiple - 1) &^ (multiple - 1)
}

func roundDown(n, multiple uint64) uint64 {
	if multiple == 0 {
		return n
	}
	return n &^ (multiple - 1)
}

// PlanBudget implements the budget formula of spec.md §4.4: auto-detect
// scratch_total when the user didn't specify one, cap primary storage to a
// page-aligned prefix of the candidate pool (itself capped to 1/4 of
// addressable memory), and size secondary storage to make up the
// difference, clamped the same way.
func PlanBudget(b Budget, primaryCandidates extent.Vector) Plan {
	scratchTotal := b.UserTotal
	if scratchTotal == 0 {
		freeRAMThird := b.FreeRAM / 3
		if freeRAMThird == 0 {
			freeRAMThird = 16 * oneMebibyte
		}
		workBytesTenth := (b.WorkCount * b.BlockSize) / 10
		scratchTotal = min(freeRAMThird, workBytesTenth)
		scratchTotal = roundUp(scratchTotal, oneMebibyte)
	}

	pageSize := b.PageSize
	if pageSize == 0 {
		pageSize = 4096
	}
	quarter := addressableQuarter()

	var primaryTotalBytes uint64
	for _, e := range primaryCandidates {
		primaryTotalBytes += e.Length * b.BlockSize
	}
	primaryTotalBytes = roundDown(primaryTotalBytes, pageSize)
	if primaryTotalBytes > quarter {
		primaryTotalBytes = roundDown(quarter, pageSize)
	}

	primary := TakePrefix(primaryCandidates, primaryTotalBytes, b.BlockSize)
	var primaryUsedBytes uint64
	for _, e := range primary {
		primaryUsedBytes += e.Length * b.BlockSize
	}

	var secondary uint64
	if scratchTotal > primaryUsedBytes {
		secondary = scratchTotal - primaryUsedBytes
		secondary = roundUp(secondary, pageSize)
		// Clamp to the signed max of the file-offset type (int64) and to
		// 1/4 of addressable memory, in that order, as spec.md §4.4 specifies.
		if secondary > math.MaxInt64 {
			secondary = uint64(math.MaxInt64) &^ (pageSize - 1)
		}
		if secondary > quarter {
			secondary = roundDown(quarter, pageSize)
		}
	}

	return Plan{PrimaryExtents: primary, SecondaryLength: secondary}
}

// TakePrefix returns a copy of candidates truncated (by trimming the last
// fragment if necessary) so its total length in bytes does not exceed
// maxBytes. Exported so --primary-storage can apply the same truncation the
// auto-detected budget uses.
func TakePrefix(candidates extent.Vector, maxBytes, blockSize uint64) extent.Vector {
	var out extent.Vector
	remaining := maxBytes
	for _, e := range candidates {
		if remaining == 0 {
			break
		}
		lengthBytes := e.Length * blockSize
		if lengthBytes > remaining {
			e.Length = remaining / blockSize
			lengthBytes = e.Length * blockSize
		}
		if e.Length == 0 {
			break
		}
		out = append(out, e)
		remaining -= lengthBytes
	}
	return out
}
