package ioengine

import (
	"math/rand"

	"github.com/fstransform/fsremap/internal/extent"
)

// SelfTestBackend is the --io=self-test backend: it invents random but
// internally consistent LOOP-FILE and FREE-SPACE extents instead of reading
// a real device, for exercising the analyzer/scheduler without any fixture
// files (grounded on ft_io_self_test::invent_extents in
// _examples/original_source/src/io/io_self_test.cc).
type SelfTestBackend struct {
	rng           *rand.Rand
	blockSizeLog2 uint
	devLength     uint64

	queued  uint64
	flushed uint64
}

// NewSelfTestBackend seeds a SelfTestBackend. Open must be called before
// ReadExtents to roll the device geometry.
func NewSelfTestBackend(seed int64) *SelfTestBackend {
	return &SelfTestBackend{rng: rand.New(rand.NewSource(seed))}
}

// Open rolls a random block size in [2^4, 2^15] and a device length in
// [blockSize, 8GiB*blockSize], mirroring the original's open().
func (s *SelfTestBackend) Open() error {
	s.blockSizeLog2 = uint(s.rng.Intn(12)) + 4
	maxBlocks := uint64(1) + uint64(s.rng.Int63n(1+2*0xffffffff))
	s.devLength = maxBlocks << s.blockSizeLog2
	return nil
}

func (s *SelfTestBackend) EffectiveBlockSizeLog2() uint { return s.blockSizeLog2 }
func (s *SelfTestBackend) DeviceLengthBytes() uint64    { return s.devLength }

// inventExtents fills a map with random, non-overlapping physical extents
// covering up to fileLen bytes, each logical offset 0 initially, mirroring
// invent_extents's first pass (hole, then run, repeated until fileLen is
// exhausted).
func (s *SelfTestBackend) inventExtents(fileLen uint64) (extent.Vector, uint64) {
	blockLen := fileLen >> s.blockSizeLog2
	if blockLen == 0 {
		return nil, 0
	}
	maxExtentLen := blockLen >> 16
	if maxExtentLen < 0x100 {
		maxExtentLen = 0x100
	}

	var bitmask uint64
	var v extent.Vector
	var pos uint64
	for pos < blockLen {
		holeMax := maxExtentLen >> 4
		if rem := blockLen - pos - 1; holeMax > rem {
			holeMax = rem
		}
		hole := randUint64n(s.rng, holeMax)

		lenMax := maxExtentLen
		if rem := blockLen - pos - hole - 1; lenMax > rem {
			lenMax = rem
		}
		length := 1 + randUint64n(s.rng, lenMax)

		physical := (pos + hole) << s.blockSizeLog2
		lengthBytes := length << s.blockSizeLog2
		bitmask |= physical | lengthBytes
		v = append(v, extent.Extent{Physical: physical, Logical: 0, Length: lengthBytes})
		pos += hole + length
	}

	// Shuffle, then assign logical offsets with their own holes, mirroring
	// the original's second pass.
	s.rng.Shuffle(len(v), func(i, j int) { v[i], v[j] = v[j], v[i] })

	out := make(extent.Vector, 0, len(v))
	pos = 0
	for i := range v {
		step := randUint64n(s.rng, min64(maxExtentLen, blockLen-pos)>>8)
		pos += step
		if pos >= blockLen {
			break
		}
		logicalBytes := pos << s.blockSizeLog2
		bitmask |= logicalBytes
		v[i].Logical = logicalBytes
		out = append(out, v[i])
		pos += v[i].Length >> s.blockSizeLog2
	}

	m := extent.NewMap()
	for _, e := range out {
		m.Insert(e)
	}
	return m.Entries(), bitmask
}

func randUint64n(r *rand.Rand, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return uint64(r.Int63n(int64(n)))
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// ReadExtents invents LOOP-FILE extents spread over the whole device and
// FREE-SPACE extents spread over a random prefix, then removes from
// FREE-SPACE every physical range that collides with LOOP-FILE, mirroring
// the original's intersect_all_all(..., FC_PHYSICAL2) step.
func (s *SelfTestBackend) ReadExtents() (loopFile, freeSpace extent.Vector, blockSizeBitmask uint64, err error) {
	freeLen := randUint64n(s.rng, s.devLength>>s.blockSizeLog2) << s.blockSizeLog2

	loopV, mask1 := s.inventExtents(s.devLength)
	freeV, mask2 := s.inventExtents(freeLen)

	loopMap := extent.NewMap()
	for _, e := range loopV {
		loopMap.Insert(e)
	}
	freeMap := extent.NewMap()
	for _, e := range freeV {
		freeMap.Insert(e)
	}
	collide := extent.IntersectAllAll(loopMap, freeMap, extent.MatchPhysical2)
	freeMap.RemoveAll(collide)

	loopFile = loopMap.Entries()
	loopFile.SortByLogical()
	freeSpace = freeMap.Entries()
	freeSpace.SortByLogical()

	return loopFile, freeSpace, mask1 | mask2 | s.devLength, nil
}

func (s *SelfTestBackend) CreateStorage(length uint64) error { return nil }

func (s *SelfTestBackend) CopyBytes(req MoveRequest) error {
	if req.Direction == StorageToStorage {
		panic("ioengine: STORAGE2STORAGE move request reached the backend")
	}
	s.queued += req.Length
	return nil
}

func (s *SelfTestBackend) QueuedBytes() uint64 { return s.queued }

func (s *SelfTestBackend) FlushBytes() error {
	s.flushed += s.queued
	s.queued = 0
	return nil
}

func (s *SelfTestBackend) Close() error { return nil }
