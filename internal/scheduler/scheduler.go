// Package scheduler implements the relocation scheduler (spec.md §4.5,
// component C7): it drains the analyzer's relocation map by issuing move
// requests through an ioengine.Backend, evicting occupants into scratch
// storage when a destination is still occupied, and coalescing adjacent
// same-direction requests before they reach the backend.
package scheduler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/fstransform/fsremap/internal/extent"
	"github.com/fstransform/fsremap/internal/ferr"
	"github.com/fstransform/fsremap/internal/ioengine"
	"github.com/fstransform/fsremap/internal/storage"
)

// Scheduler drains a relocation map against a scratch pool via a backend.
type Scheduler struct {
	backend ioengine.Backend
	log     *logrus.Logger

	relocationMap *extent.Map
	storageMap    *extent.Map
	scratch       *extent.Pool

	// pending holds the last move request, so the next one can be merged
	// into it before either reaches the backend (the coalescence rule).
	pending *pendingRequest

	// forceMode demotes sanity-check failures to warnings instead of
	// treating them as fatal (spec.md §4.5 "Failure semantics").
	forceMode bool
	warnings  *multierror.Error

	blockSizeLog2 uint
}

type pendingRequest struct {
	req ioengine.MoveRequest
}

// New builds a Scheduler. The plan's primary extents and secondary length
// together form the single logical "storage" address space the storage
// map's STORAGE-tagged entries live in.
func New(backend ioengine.Backend, relocationMap *extent.Map, plan storage.Plan, forceMode bool, log *logrus.Logger) *Scheduler {
	scratchMap := extent.NewMap()
	for _, e := range plan.PrimaryExtents {
		scratchMap.Insert(extent.Extent{Physical: e.Physical, Logical: e.Logical, Length: e.Length, Tag: extent.TagStorage})
	}
	if plan.SecondaryLength > 0 {
		blockSize := uint64(1)
		if backend != nil {
			blockSize = uint64(1) << backend.EffectiveBlockSizeLog2()
		}
		secondaryBlocks := plan.SecondaryLength / blockSize
		// secondary storage is addressed starting past the highest primary
		// fragment's physical offset, giving it a disjoint address range
		// within the unified scratch space.
		base := uint64(0)
		if entries := scratchMap.Entries(); len(entries) > 0 {
			last := entries[len(entries)-1]
			base = last.End()
		}
		if secondaryBlocks > 0 {
			scratchMap.Insert(extent.Extent{Physical: base, Logical: base, Length: secondaryBlocks, Tag: extent.TagStorage})
		}
	}

	return &Scheduler{
		backend:       backend,
		log:           log,
		relocationMap: relocationMap,
		storageMap:    extent.NewMap(),
		scratch:       extent.NewPool(scratchMap),
		forceMode:     forceMode,
		blockSizeLog2: func() uint {
			if backend != nil {
				return backend.EffectiveBlockSizeLog2()
			}
			return 0
		}(),
	}
}

// WorkCount returns the sum of lengths still outstanding, device plus
// storage side, the quantity spec.md §4.5 "Termination" decreases monotonically.
func (s *Scheduler) WorkCount() uint64 {
	return s.relocationMap.TotalLength() + s.storageMap.TotalLength()
}

// Warnings returns the accumulated sanity-check warnings collected while
// running in force mode.
func (s *Scheduler) Warnings() error {
	if s.warnings == nil {
		return nil
	}
	return s.warnings.ErrorOrNil()
}

// Run drains the relocation map to empty, returning ferr.NoSpace if eviction
// becomes impossible. ctxDone, if non-nil, is polled between moves for
// cooperative cancellation (spec.md §5).
func (s *Scheduler) Run(ctxDone <-chan struct{}) error {
	for s.WorkCount() > 0 {
		select {
		case <-orDone(ctxDone):
			if err := s.flushPending(); err != nil {
				return err
			}
			return ferr.New(ferr.Internal, "relocation cancelled with %d blocks outstanding", s.WorkCount())
		default:
		}

		moved, err := s.step()
		if err != nil {
			return err
		}
		if !moved {
			if err := s.flushPending(); err != nil {
				return err
			}
			return ferr.New(ferr.NoSpace, "scratch space exhausted: %d blocks could not be relocated", s.WorkCount())
		}
	}
	return s.flushPending()
}

func orDone(ch <-chan struct{}) <-chan struct{} {
	if ch == nil {
		return nil
	}
	return ch
}

// step issues exactly one move, advancing the overall state, and reports
// whether progress was made.
func (s *Scheduler) step() (bool, error) {
	entries := s.relocationMap.Entries()
	if len(entries) == 0 {
		return s.drainStorage()
	}

	e := entries[0]
	traceID := uuid.New()

	// Rule 1: does e's destination collide with something still in the map?
	if occupant, ok := s.occupantAt(e.Logical, e.Length); ok {
		return s.evict(occupant, traceID)
	}

	// Rule 2: destination is vacant, issue the direct move.
	length := e.Length
	if err := s.issue(ioengine.MoveRequest{
		From:      e.Physical << s.blockSizeLog2,
		To:        e.Logical << s.blockSizeLog2,
		Length:    length << s.blockSizeLog2,
		Direction: ioengine.DevToDev,
	}, traceID); err != nil {
		return false, err
	}
	s.relocationMap.RemoveFront(e.Physical, length)
	return true, nil
}

// occupantAt finds a relocation-map entry whose physical range overlaps
// [logical, logical+length), i.e. still sits where e wants to land. Only an
// entry whose Physical, Logical and Length all match that range is skipped,
// so a mover whose own range overlaps its destination is reported as its
// own occupant.
func (s *Scheduler) occupantAt(logical, length uint64) (extent.Extent, bool) {
	target := extent.Extent{Physical: logical, Logical: logical, Length: length}
	for _, cand := range s.relocationMap.Entries() {
		if cand.Physical == logical && cand.Length == length && cand.Logical == logical {
			continue
		}
		if extent.Compare(cand, target) == extent.Intersect {
			return cand, true
		}
	}
	return extent.Extent{}, false
}

// evict moves the whole occupant F into one scratch slot (DEV2STORAGE),
// freeing up its current physical range so the original mover can proceed
// on the next step. If no free slot is at least as long as F, nothing moves.
func (s *Scheduler) evict(occupant extent.Extent, traceID uuid.UUID) (bool, error) {
	slot, ok := s.scratch.Allocate(occupant.Length)
	if !ok {
		return false, nil
	}

	if err := s.issue(ioengine.MoveRequest{
		From:      occupant.Physical << s.blockSizeLog2,
		To:        slot.Physical << s.blockSizeLog2,
		Length:    occupant.Length << s.blockSizeLog2,
		Direction: ioengine.DevToStorage,
	}, traceID); err != nil {
		return false, err
	}

	s.relocationMap.RemoveFront(occupant.Physical, occupant.Length)
	s.storageMap.InsertRaw(extent.Extent{
		Physical: slot.Physical,
		Logical:  occupant.Logical,
		Length:   occupant.Length,
		Tag:      extent.TagStorage,
	})
	return true, nil
}

// drainStorage flushes entries already evicted to scratch back to their
// real destination (STORAGE2DEV) once the device-side map has emptied.
func (s *Scheduler) drainStorage() (bool, error) {
	entries := s.storageMap.Entries()
	if len(entries) == 0 {
		return false, nil
	}
	e := entries[0]
	if _, occupied := s.occupantAt(e.Logical, e.Length); occupied {
		return false, nil
	}

	traceID := uuid.New()
	if err := s.issue(ioengine.MoveRequest{
		From:      e.Physical << s.blockSizeLog2,
		To:        e.Logical << s.blockSizeLog2,
		Length:    e.Length << s.blockSizeLog2,
		Direction: ioengine.StorageToDev,
	}, traceID); err != nil {
		return false, err
	}
	s.storageMap.RemoveFront(e.Physical, e.Length)
	s.scratch = extent.NewPool(rebuildFreeMap(s.scratch, e))
	return true, nil
}

// rebuildFreeMap returns the free scratch pool's extents plus the slot just
// vacated by a completed STORAGE2DEV flush.
func rebuildFreeMap(pool *extent.Pool, freed extent.Extent) *extent.Map {
	m := extent.NewMap()
	for _, e := range pool.Remaining() {
		m.Insert(e)
	}
	m.Insert(extent.Extent{Physical: freed.Physical, Logical: freed.Physical, Length: freed.Length, Tag: extent.TagStorage})
	return m
}

// issue applies the coalescence rule before handing a move request to the
// backend: a request that fuses with the pending one is merged in place;
// otherwise the pending request (if any) is flushed to the backend first.
func (s *Scheduler) issue(req ioengine.MoveRequest, traceID uuid.UUID) error {
	if req.Direction == ioengine.StorageToStorage {
		err := ferr.New(ferr.Internal, "scheduler produced a forbidden STORAGE2STORAGE move request")
		if s.forceMode {
			s.warnings = multierror.Append(s.warnings, err)
			return nil
		}
		return err
	}

	if s.pending != nil && coalesces(s.pending.req, req) {
		s.pending.req = fuse(s.pending.req, req)
		return nil
	}

	if err := s.flushPending(); err != nil {
		return err
	}
	s.pending = &pendingRequest{req: req}
	if s.log != nil {
		s.log.WithField("trace", traceID.String()).Debugf("queued %s move: %d bytes from %d to %d",
			req.Direction, req.Length, req.From, req.To)
	}
	return nil
}

// coalesces implements spec.md §4.5's fusion rule: same direction, and
// either A directly precedes B or B directly precedes A on both axes.
func coalesces(a, b ioengine.MoveRequest) bool {
	if a.Direction != b.Direction {
		return false
	}
	return (a.From+a.Length == b.From && a.To+a.Length == b.To) ||
		(b.From+b.Length == a.From && b.To+b.Length == a.To)
}

func fuse(a, b ioengine.MoveRequest) ioengine.MoveRequest {
	if b.From < a.From {
		a, b = b, a
	}
	return ioengine.MoveRequest{From: a.From, To: a.To, Length: a.Length + b.Length, Direction: a.Direction}
}

func (s *Scheduler) flushPending() error {
	if s.pending == nil {
		return nil
	}
	req := s.pending.req
	s.pending = nil
	if err := s.backend.CopyBytes(req); err != nil {
		return fmt.Errorf("scheduler: %s move of %d bytes: %w", req.Direction, req.Length, err)
	}
	return s.backend.FlushBytes()
}
