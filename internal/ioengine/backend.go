// Package ioengine specifies the abstract I/O capability the analyzer,
// storage planner, and scheduler consume (spec.md §4.6, component C8), and
// provides the backend implementations spec.md §6's --io flag selects:
// posix (real device I/O), test (extents from text files), self-test
// (invented but consistent extents), and a null backend for --no-action.
package ioengine

import "github.com/fstransform/fsremap/internal/extent"

// Direction classifies a move request. StorageToStorage is a forbidden
// sentinel: its presence anywhere signals a scheduler bug.
type Direction int

const (
	DevToDev Direction = iota
	DevToStorage
	StorageToDev
	StorageToStorage // forbidden; see spec.md §4.5
)

func (d Direction) String() string {
	switch d {
	case DevToDev:
		return "DEV2DEV"
	case DevToStorage:
		return "DEV2STORAGE"
	case StorageToDev:
		return "STORAGE2DEV"
	default:
		return "STORAGE2STORAGE"
	}
}

// MoveRequest is the quadruple (from, to, length, direction) spec.md §4.5
// defines as the unit the scheduler issues to the backend.
type MoveRequest struct {
	From, To, Length uint64
	Direction        Direction
}

// Backend is the capability surface spec.md §4.6 describes. All operations
// are synchronous except CopyBytes, which may buffer and returns once the
// request is enqueued.
type Backend interface {
	// EffectiveBlockSizeLog2 returns the log2 of the device's effective block size.
	EffectiveBlockSizeLog2() uint

	// DeviceLengthBytes returns the device length in bytes.
	DeviceLengthBytes() uint64

	// ReadExtents populates the loop-file and free-space extent vectors and
	// returns the bitmask used to derive the effective block size.
	ReadExtents() (loopFile, freeSpace extent.Vector, blockSizeBitmask uint64, err error)

	// CreateStorage materializes a zero-filled secondary-storage file of the
	// given length, resetting any partial file on failure.
	CreateStorage(length uint64) error

	// CopyBytes enqueues a move request and returns once it has been recorded.
	CopyBytes(req MoveRequest) error

	// QueuedBytes returns the number of bytes enqueued but not yet flushed.
	QueuedBytes() uint64

	// FlushBytes durably performs every enqueued copy; after it returns,
	// QueuedBytes is 0.
	FlushBytes() error

	// Close releases every resource this backend holds, in LIFO order of acquisition.
	Close() error
}
