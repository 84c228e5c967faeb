package segalloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
)

// testCapacity is small enough that the soak tests below complete quickly
// while still exercising every segment and the split/coalesce paths many
// times over.
const testCapacity = 1 << 20 // 1 MiB

func newTestAllocator(opts ...Option) *Allocator {
	base := []Option{
		WithCapacity(testCapacity),
		WithSegmentCount(5),
		WithMinSplit(16),
		WithLargeThreshold(64 << 10),
	}
	return New(append(base, opts...)...)
}

func TestAllocateReturnsUsablePayload(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()

	p := a.Allocate(128)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), 128)
	for i := range b {
		b[i] = byte(i)
	}
	for i := range b {
		require.Equal(t, byte(i), b[i])
	}

	a.Release(p)
	require.Equal(t, 0, a.Stats().Allocs)
}

func TestAllocateZeroOrNegativeSizePanics(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()

	require.Panics(t, func() { a.Allocate(0) })
	require.Panics(t, func() { a.Allocate(-1) })
}

func TestReleaseNilIsNoOp(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()
	require.NotPanics(t, func() { a.Release(nil) })
}

func TestLargeRequestRoutesToLargeSegment(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()

	p := a.Allocate(100 << 10) // above largeThreshold
	require.NotNil(t, p)

	h := headerFromPayload(p)
	require.Equal(t, a.cfg.segmentCount-1, h.segmentID, "oversized request must land in the large segment")

	a.Release(p)
}

func TestRoundRobinVisitsEverySmallSegment(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()

	smallSegments := a.cfg.segmentCount - 1
	seen := make(map[int]bool)
	var ptrs []unsafe.Pointer
	for i := 0; i < smallSegments; i++ {
		p := a.Allocate(64)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
		seen[headerFromPayload(p).segmentID] = true
	}

	require.Len(t, seen, smallSegments, "one full round of small allocations must touch every small segment exactly once")
	for _, p := range ptrs {
		a.Release(p)
	}
}

func TestAllocateTooLargeEverReturnsNil(t *testing.T) {
	a := newTestAllocator()
	defer a.Teardown()
	require.Nil(t, a.Allocate(testCapacity*2))
}

// soak exercises the teacher-style allocate/verify/shuffle/free cycle: fill
// the allocator's small segments (every size is below the large threshold,
// so the large segment is not used) with randomly-sized blocks seeded for reproducible
// verification, then release them all and check the allocator's live
// counters return to zero.
func soak(t *testing.T, maxBlock int, budget int) {
	a := newTestAllocator()
	defer a.Teardown()

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	require.NoError(t, err)
	rng.Seed(42)
	pos := rng.Pos()

	var ptrs []unsafe.Pointer
	var sizes []int
	rem := budget
	for rem > 0 {
		size := rng.Next()%maxBlock + 1
		p := a.Allocate(size)
		if p == nil {
			break // allocator is full relative to budget; stop feeding it
		}
		rem -= size
		ptrs = append(ptrs, p)
		sizes = append(sizes, size)

		b := unsafe.Slice((*byte)(p), size)
		for i := range b {
			b[i] = byte(rng.Next())
		}
	}

	rng.Seek(pos)
	for i, p := range ptrs {
		size := sizes[i]
		require.Equal(t, rng.Next()%maxBlock+1, size)
		b := unsafe.Slice((*byte)(p), size)
		for j := range b {
			require.Equal(t, byte(rng.Next()), b[j], "block %d byte %d corrupted", i, j)
		}
	}

	// Shuffle before freeing so release order doesn't mirror allocation
	// order, exercising coalescing from both directions.
	for i := range ptrs {
		j := rng.Next() % len(ptrs)
		ptrs[i], ptrs[j] = ptrs[j], ptrs[i]
	}
	for _, p := range ptrs {
		a.Release(p)
	}

	require.Equal(t, 0, a.Stats().Allocs)
}

func TestSoakSmallBlocks(t *testing.T) { soak(t, 512, testCapacity/2) }
func TestSoakTinyBlocks(t *testing.T)  { soak(t, 48, testCapacity/4) }

func TestTeardownAllowsReinitialization(t *testing.T) {
	a := newTestAllocator()

	p := a.Allocate(64)
	require.NotNil(t, p)
	a.Release(p)

	require.NoError(t, a.Teardown())
	require.False(t, a.Stats().Initialized)

	// A fresh backing region must be acquired transparently on next use.
	p2 := a.Allocate(64)
	require.NotNil(t, p2)
	require.True(t, a.Stats().Initialized)
	a.Release(p2)
	require.NoError(t, a.Teardown())
}

func TestNewPanicsOnTooFewSegments(t *testing.T) {
	require.Panics(t, func() { New(WithSegmentCount(1)) })
}
