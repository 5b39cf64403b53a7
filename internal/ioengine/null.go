package ioengine

import "github.com/fstransform/fsremap/internal/extent"

// NullBackend is the backend spec.md §6's --no-action selects:
// it reports extents already loaded into it but performs no real I/O,
// tracking queued/flushed byte counts so the scheduler's accounting still
// exercises its real code paths (grounded on ft_io_null in
// _examples/original_source/src/io/io_null.hh).
type NullBackend struct {
	blockSizeLog2 uint
	devLength     uint64
	loopFile      extent.Vector
	freeSpace     extent.Vector

	queued  uint64
	flushed uint64
}

// NewNullBackend builds a NullBackend seeded with the extents the caller
// already knows, e.g. loaded by the analyzer's caller from --simulate-run input.
func NewNullBackend(blockSizeLog2 uint, devLength uint64, loopFile, freeSpace extent.Vector) *NullBackend {
	return &NullBackend{
		blockSizeLog2: blockSizeLog2,
		devLength:     devLength,
		loopFile:      loopFile,
		freeSpace:     freeSpace,
	}
}

func (n *NullBackend) EffectiveBlockSizeLog2() uint { return n.blockSizeLog2 }
func (n *NullBackend) DeviceLengthBytes() uint64    { return n.devLength }

func (n *NullBackend) ReadExtents() (loopFile, freeSpace extent.Vector, blockSizeBitmask uint64, err error) {
	return n.loopFile, n.freeSpace, uint64(1) << n.blockSizeLog2, nil
}

func (n *NullBackend) CreateStorage(length uint64) error { return nil }

func (n *NullBackend) CopyBytes(req MoveRequest) error {
	if req.Direction == StorageToStorage {
		panic("ioengine: STORAGE2STORAGE move request reached the backend")
	}
	n.queued += req.Length
	return nil
}

func (n *NullBackend) QueuedBytes() uint64 { return n.queued }

func (n *NullBackend) FlushBytes() error {
	n.flushed += n.queued
	n.queued = 0
	return nil
}

func (n *NullBackend) Close() error { return nil }
