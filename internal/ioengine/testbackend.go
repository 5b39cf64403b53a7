package ioengine

import (
	"fmt"
	"os"

	"github.com/fstransform/fsremap/internal/extent"
)

// TestBackend is the --io=test backend: it loads LOOP-FILE and FREE-SPACE
// extents from two on-disk wire-format files (grounded on ft_io_test in
// _examples/original_source/src/io/io_test.cc) and otherwise behaves like
// NullBackend, performing no real copies.
type TestBackend struct {
	devLength uint64

	loopFilePath  string
	freeSpacePath string

	loopFile  extent.Vector
	freeSpace extent.Vector
	bitmask   uint64

	blockSizeLog2 uint
	queued        uint64
	flushed       uint64
}

// NewTestBackend builds a TestBackend that will load its extents from the
// given paths when Open is called.
func NewTestBackend(loopFilePath, freeSpacePath string, devLength uint64) *TestBackend {
	return &TestBackend{
		loopFilePath:  loopFilePath,
		freeSpacePath: freeSpacePath,
		devLength:     devLength,
	}
}

// Open loads both extent files. It must be called before ReadExtents.
func (t *TestBackend) Open() error {
	for _, pair := range []struct {
		path string
		dst  *extent.Vector
	}{
		{t.loopFilePath, &t.loopFile},
		{t.freeSpacePath, &t.freeSpace},
	} {
		f, err := os.Open(pair.path)
		if err != nil {
			return fmt.Errorf("ioengine: opening %s: %w", pair.path, err)
		}
		v, _, err := ReadExtentFile(f)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("ioengine: reading %s: %w", pair.path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("ioengine: closing %s: %w", pair.path, closeErr)
		}
		*pair.dst = v
		for _, e := range v {
			t.bitmask |= e.Physical | e.Logical | e.Length
		}
	}
	t.loopFile.SortByLogical()
	t.freeSpace.SortByLogical()
	return nil
}

func (t *TestBackend) EffectiveBlockSizeLog2() uint { return t.blockSizeLog2 }
func (t *TestBackend) DeviceLengthBytes() uint64    { return t.devLength }

func (t *TestBackend) ReadExtents() (loopFile, freeSpace extent.Vector, blockSizeBitmask uint64, err error) {
	if t.loopFile == nil && t.freeSpace == nil {
		return nil, nil, 0, fmt.Errorf("ioengine: TestBackend not open")
	}
	return t.loopFile, t.freeSpace, t.bitmask | t.devLength, nil
}

func (t *TestBackend) CreateStorage(length uint64) error { return nil }

func (t *TestBackend) CopyBytes(req MoveRequest) error {
	if req.Direction == StorageToStorage {
		panic("ioengine: STORAGE2STORAGE move request reached the backend")
	}
	t.queued += req.Length
	return nil
}

func (t *TestBackend) QueuedBytes() uint64 { return t.queued }

func (t *TestBackend) FlushBytes() error {
	t.flushed += t.queued
	t.queued = 0
	return nil
}

func (t *TestBackend) Close() error { return nil }
