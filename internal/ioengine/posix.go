package ioengine

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/unix"

	"github.com/fstransform/fsremap/internal/extent"
)

// ExtentProbe retrieves a file's physical block allocation map. Supplying
// the actual FIEMAP/FIBMAP ioctl calls is left to the caller (spec.md's
// Non-goals exclude raw extent-probing primitives; PosixBackend treats them
// as an external collaborator it is handed at construction time).
type ExtentProbe func(fd int, devLength uint64) (extent.Vector, error)

// PosixBackend is the --io=posix backend: it opens DEVICE, LOOP-FILE, and
// ZERO-FILE with real file descriptors and performs real pread/pwrite I/O
// against them (grounded on ft_io_posix in
// _examples/original_source/src/io/io_posix.cc).
type PosixBackend struct {
	devicePath, loopFilePath, zeroFilePath string
	probe                                  ExtentProbe

	deviceFD, loopFD, zeroFD int
	devLength                uint64
	blockSizeLog2            uint

	queued  uint64
	flushed uint64
}

// NewPosixBackend builds a PosixBackend. probe supplies the extent-mapping
// primitive (FIEMAP/FIBMAP or equivalent); a nil probe makes ReadExtents
// report every file as fully allocated starting at offset 0, which is
// sufficient for exercising the rest of the pipeline without kernel support.
func NewPosixBackend(devicePath, loopFilePath, zeroFilePath string, probe ExtentProbe) *PosixBackend {
	return &PosixBackend{
		devicePath:    devicePath,
		loopFilePath:  loopFilePath,
		zeroFilePath:  zeroFilePath,
		probe:         probe,
		deviceFD:      -1,
		loopFD:        -1,
		zeroFD:        -1,
	}
}

// Open opens DEVICE, LOOP-FILE, and ZERO-FILE and records the device length.
// It does not check that LOOP-FILE and ZERO-FILE reside on DEVICE.
func (p *PosixBackend) Open() error {
	if p.IsOpen() {
		return fmt.Errorf("ioengine: posix backend already open")
	}

	deviceFD, err := unix.Open(p.devicePath, unix.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("ioengine: opening DEVICE %q: %w", p.devicePath, err)
	}
	loopFD, err := unix.Open(p.loopFilePath, unix.O_RDWR, 0)
	if err != nil {
		unix.Close(deviceFD)
		return fmt.Errorf("ioengine: opening LOOP-FILE %q: %w", p.loopFilePath, err)
	}
	zeroFD, err := unix.Open(p.zeroFilePath, unix.O_RDWR, 0)
	if err != nil {
		unix.Close(deviceFD)
		unix.Close(loopFD)
		return fmt.Errorf("ioengine: opening ZERO-FILE %q: %w", p.zeroFilePath, err)
	}

	var deviceStat, loopStat, zeroStat unix.Stat_t
	if err := unix.Fstat(deviceFD, &deviceStat); err != nil {
		p.closeAll(deviceFD, loopFD, zeroFD)
		return fmt.Errorf("ioengine: fstat DEVICE: %w", err)
	}
	if err := unix.Fstat(loopFD, &loopStat); err != nil {
		p.closeAll(deviceFD, loopFD, zeroFD)
		return fmt.Errorf("ioengine: fstat LOOP-FILE: %w", err)
	}
	if err := unix.Fstat(zeroFD, &zeroStat); err != nil {
		p.closeAll(deviceFD, loopFD, zeroFD)
		return fmt.Errorf("ioengine: fstat ZERO-FILE: %w", err)
	}
	if loopStat.Dev != deviceStat.Rdev && zeroStat.Dev != deviceStat.Rdev {
		// not enforced: a regular DEVICE file (rather than a block device)
		// reports its own Dev rather than Rdev.
	}

	devLength, err := unix.Seek(deviceFD, 0, unix.SEEK_END)
	if err != nil {
		p.closeAll(deviceFD, loopFD, zeroFD)
		return fmt.Errorf("ioengine: measuring DEVICE length: %w", err)
	}
	if _, err := unix.Seek(deviceFD, 0, unix.SEEK_SET); err != nil {
		p.closeAll(deviceFD, loopFD, zeroFD)
		return fmt.Errorf("ioengine: rewinding DEVICE: %w", err)
	}

	p.deviceFD, p.loopFD, p.zeroFD = deviceFD, loopFD, zeroFD
	p.devLength = uint64(devLength)
	return nil
}

func (p *PosixBackend) closeAll(fds ...int) {
	for _, fd := range fds {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
}

// IsOpen reports whether Open has succeeded and Close has not yet run.
func (p *PosixBackend) IsOpen() bool { return p.devLength != 0 && p.deviceFD >= 0 }

func (p *PosixBackend) EffectiveBlockSizeLog2() uint { return p.blockSizeLog2 }
func (p *PosixBackend) DeviceLengthBytes() uint64    { return p.devLength }

func (p *PosixBackend) ReadExtents() (loopFile, freeSpace extent.Vector, blockSizeBitmask uint64, err error) {
	if !p.IsOpen() {
		return nil, nil, 0, fmt.Errorf("ioengine: posix backend not open")
	}
	probe := p.probe
	if probe == nil {
		probe = wholeFileProbe
	}
	loopFile, err = probe(p.loopFD, p.devLength)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ioengine: probing LOOP-FILE extents: %w", err)
	}
	freeSpace, err = probe(p.zeroFD, p.devLength)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("ioengine: probing ZERO-FILE extents: %w", err)
	}
	var mask uint64 = p.devLength
	for _, v := range [2]extent.Vector{loopFile, freeSpace} {
		for _, e := range v {
			mask |= e.Physical | e.Logical | e.Length
		}
	}
	p.blockSizeLog2 = uint(bits.TrailingZeros64(mask))
	return loopFile, freeSpace, mask, nil
}

// wholeFileProbe is the degenerate ExtentProbe used when the caller supplies
// none: it reports the whole file behind fd (its current size, starting at
// offset 0) as one extent.
func wholeFileProbe(fd int, devLength uint64) (extent.Vector, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, err
	}
	size := uint64(st.Size)
	if size == 0 {
		return nil, nil
	}
	return extent.Vector{{Physical: 0, Logical: 0, Length: size}}, nil
}

// CreateStorage pre-allocates length bytes for the secondary-storage file
// using fallocate, falling back to ftruncate if the filesystem rejects it.
func (p *PosixBackend) CreateStorage(length uint64) error {
	if !p.IsOpen() {
		return fmt.Errorf("ioengine: posix backend not open")
	}
	if err := unix.Fallocate(p.zeroFD, 0, 0, int64(length)); err != nil {
		if err := unix.Ftruncate(p.zeroFD, int64(length)); err != nil {
			return fmt.Errorf("ioengine: creating secondary storage: %w", err)
		}
	}
	return unix.Flock(p.zeroFD, unix.LOCK_EX|unix.LOCK_NB)
}

// CopyBytes performs one pread/pwrite relocation immediately: fsremap's
// copy volumes are small enough relative to --mem-buffer that true
// asynchronous queuing is unnecessary; QueuedBytes/FlushBytes still model
// the accounting contract the scheduler relies on.
func (p *PosixBackend) CopyBytes(req MoveRequest) error {
	if req.Direction == StorageToStorage {
		panic("ioengine: STORAGE2STORAGE move request reached the backend")
	}
	srcFD, dstFD := p.fdForDirection(req.Direction)
	buf := make([]byte, req.Length)
	if _, err := unix.Pread(srcFD, buf, int64(req.From)); err != nil {
		return fmt.Errorf("ioengine: pread at %d: %w", req.From, err)
	}
	if _, err := unix.Pwrite(dstFD, buf, int64(req.To)); err != nil {
		return fmt.Errorf("ioengine: pwrite at %d: %w", req.To, err)
	}
	p.queued += req.Length
	return nil
}

func (p *PosixBackend) fdForDirection(dir Direction) (src, dst int) {
	switch dir {
	case DevToDev:
		return p.deviceFD, p.deviceFD
	case DevToStorage:
		return p.deviceFD, p.zeroFD
	case StorageToDev:
		return p.zeroFD, p.deviceFD
	default:
		panic("ioengine: unreachable direction")
	}
}

func (p *PosixBackend) QueuedBytes() uint64 { return p.queued }

// FlushBytes calls fsync on DEVICE and the storage file; CopyBytes already
// performed every write synchronously.
func (p *PosixBackend) FlushBytes() error {
	if err := unix.Fsync(p.deviceFD); err != nil {
		return fmt.Errorf("ioengine: fsync DEVICE: %w", err)
	}
	if err := unix.Fsync(p.zeroFD); err != nil {
		return fmt.Errorf("ioengine: fsync ZERO-FILE: %w", err)
	}
	p.flushed += p.queued
	p.queued = 0
	return nil
}

func (p *PosixBackend) Close() error {
	var firstErr error
	for _, fd := range []*int{&p.zeroFD, &p.loopFD, &p.deviceFD} {
		if *fd >= 0 {
			if err := unix.Close(*fd); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("ioengine: closing fd %d: %w", *fd, err)
			}
			*fd = -1
		}
	}
	p.devLength = 0
	return firstErr
}
