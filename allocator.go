package segalloc

import (
	"fmt"
	"sync"
	"unsafe"
)

// Allocator allocates and releases memory from a single fixed-capacity
// backing region, partitioned into independently-locked segments. The
// zero value is not ready for use; construct one with New.
type Allocator struct {
	cfg config

	initMu      sync.Mutex
	initialized bool
	region      *region
	segments    []*segment

	rrMu      sync.Mutex
	rrCounter int

	statsMu  sync.Mutex
	allocs   int
	timeouts int
}

// New constructs an Allocator. With no options it reproduces the
// specification's compile-time constants exactly (100 MiB capacity, 5
// segments, 32-byte minimum split, 100ms wait timeout, 4MiB large
// threshold); the backing region is not acquired until the first
// Allocate call (lazy one-shot initialization, per spec.md §4.1).
func New(opts ...Option) *Allocator {
	cfg := newConfig(opts...)
	if cfg.segmentCount < 2 {
		panic("segalloc: segment count must be at least 2")
	}
	return &Allocator{cfg: cfg}
}

// ensureInitialized performs the one-shot acquisition of the backing
// region and construction of the segment array, guarded by initMu so
// concurrent first callers race safely and only one of them builds the
// state. Unlike sync.Once, the guard is a plain mutex+bool so Teardown can
// rearm it for a later re-initialization, mirroring the original C
// source's init_mutex/initialized static pair.
func (a *Allocator) ensureInitialized() bool {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.initialized {
		return true
	}

	r, err := newRegion(a.cfg.capacity)
	if err != nil {
		if trace {
			log.WithError(err).Warn("segalloc: backing region acquisition failed")
		}
		return false
	}

	segs := make([]*segment, a.cfg.segmentCount)
	offset := 0
	for id := range segs {
		size := a.cfg.segmentSize(id)
		start := unsafe.Pointer(&r.bytes[offset])
		segs[id] = initSegment(id, start, size)
		offset += size
	}

	a.region = r
	a.segments = segs
	a.initialized = true
	if trace {
		log.WithField("capacity", a.cfg.capacity).WithField("segments", len(segs)).Debug("segalloc: initialized")
	}
	return true
}

// nextRoundRobinSegment advances the shared round-robin counter and
// returns the small-segment id it pointed at. This counter advances on
// every call regardless of outcome, per spec.md §4.3 step 3.
func (a *Allocator) nextRoundRobinSegment() int {
	a.rrMu.Lock()
	defer a.rrMu.Unlock()
	id := a.rrCounter
	a.rrCounter = (a.rrCounter + 1) % (a.cfg.segmentCount - 1)
	return id
}

// Allocate reserves size payload bytes and returns a pointer to them, or
// nil if the allocator could not satisfy the request before its wait
// timeout (or could never satisfy it, or failed to initialize). size must
// be strictly positive; Allocate panics otherwise, matching a contract
// violation rather than a recoverable error per spec.md §7.
func (a *Allocator) Allocate(size int) unsafe.Pointer {
	if size <= 0 {
		panic(fmt.Sprintf("segalloc: invalid allocate size %d", size))
	}

	if !a.ensureInitialized() {
		return nil
	}

	if block, owner := a.fastPath(size); block != nil {
		owner.splitBlock(block, size, a.cfg.minSplit)
		owner.mu.Unlock()
		a.countAllocate()
		return payloadOf(block)
	}

	block, owner := a.waitPhase(size)
	if block == nil {
		a.countTimeout()
		return nil
	}

	block.segmentID = owner.id
	owner.splitBlock(block, size, a.cfg.minSplit)
	owner.mu.Unlock()
	a.countAllocate()
	return payloadOf(block)
}

// fastPath makes one non-blocking best-fit attempt against the round-robin
// segment, unconditionally, regardless of size — per spec.md §4.3 steps 2-4
// (and the original my_malloc's unconditional round_robin_mutex-guarded
// find_best_fit before any size check), the counter advances and this
// attempt happens on every call; size-based routing to the large segment
// applies only to the wait phase (step 5). A payload between the large
// threshold and the round-robin segment's own capacity can therefore still
// be satisfied here without ever entering the wait phase. On success the
// returned segment's lock is held, for the caller to split inside the same
// critical section; on failure (nil, nil) is returned with no lock held.
func (a *Allocator) fastPath(size int) (*header, *segment) {
	segID := a.nextRoundRobinSegment()
	seg := a.segments[segID]
	seg.mu.Lock()
	if block := seg.findBestFit(size); block != nil {
		return block, seg
	}
	seg.mu.Unlock()
	return nil, nil
}

// waitPhase runs the blocking wait phase described in spec.md §4.3 step 5:
// small requests visit every small segment in order, large requests visit
// only the large segment. On success the returned segment's lock is still
// held, for the caller to finish split-and-mark inside the same critical
// section that discovered the fit.
func (a *Allocator) waitPhase(size int) (*header, *segment) {
	if size <= a.cfg.largeThreshold {
		for id := 0; id < a.cfg.segmentCount-1; id++ {
			seg := a.segments[id]
			if block := seg.waitForFreeBlock(size, a.cfg.waitTimeout, a.cfg.capacity); block != nil {
				return block, seg
			}
		}
		return nil, nil
	}

	seg := a.segments[a.cfg.segmentCount-1]
	if block := seg.waitForFreeBlock(size, a.cfg.waitTimeout, a.cfg.capacity); block != nil {
		return block, seg
	}
	return nil, nil
}

// Release returns a previously-allocated block to its owning segment's
// free list, coalescing it with any address-adjacent free neighbor. A nil
// pointer is a no-op; releasing anything else is only valid for a pointer
// earlier returned by Allocate and not yet released — violating that is
// undefined behavior, per spec.md §7.
func (a *Allocator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}

	h := headerFromPayload(p)
	seg := a.segments[h.segmentID]

	seg.mu.Lock()
	seg.coalesceFree(h)
	seg.mu.Unlock()

	a.statsMu.Lock()
	a.allocs--
	a.statsMu.Unlock()
}

// Teardown destroys all per-segment locks/condition variables and watchdog
// timers, and releases the backing region back to the host allocator. It
// is only legal after every outstanding pointer has been released. After
// Teardown returns, the Allocator is uninitialized again and the next
// Allocate call re-acquires a fresh backing region.
func (a *Allocator) Teardown() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if !a.initialized {
		return nil
	}

	for _, seg := range a.segments {
		seg.timer.Stop()
	}

	err := a.region.release()
	a.region = nil
	a.segments = nil
	a.initialized = false
	a.rrCounter = 0
	if trace {
		log.Debug("segalloc: teardown complete")
	}
	return err
}

func (a *Allocator) countAllocate() {
	a.statsMu.Lock()
	a.allocs++
	a.statsMu.Unlock()
}

func (a *Allocator) countTimeout() {
	a.statsMu.Lock()
	a.timeouts++
	a.statsMu.Unlock()
	if trace {
		log.Debug("segalloc: allocate timed out")
	}
}
