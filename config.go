package segalloc

import "time"

// Compile-time tunables from the specification. New() uses these unless
// overridden by an Option.
const (
	// DefaultCapacity is the total size, in bytes, of the backing region:
	// 100 MiB.
	DefaultCapacity = 100 << 20

	// DefaultSegmentCount is the number of segments the backing region is
	// carved into. The first DefaultSegmentCount-1 are small segments
	// sharing 20% of the capacity; the last is the large segment holding
	// the remaining 80%.
	DefaultSegmentCount = 5

	// DefaultMinSplit is the minimum payload size, in bytes, a tail block
	// must retain for split to carve it off rather than absorb it as
	// internal fragmentation.
	DefaultMinSplit = 32

	// DefaultWaitTimeout bounds how long Allocate blocks per segment
	// during the wait phase before giving up on that segment.
	DefaultWaitTimeout = 100 * time.Millisecond

	// DefaultLargeThreshold is the payload size above which a request's
	// blocking wait phase goes to the large segment only, instead of
	// visiting the small segments. Every request, whatever its size, first
	// makes one non-blocking attempt on the round-robin small segment.
	DefaultLargeThreshold = 4 << 20

	smallShare = 0.20
	largeShare = 0.80
)

// config holds the resolved tunables for one Allocator instance. The zero
// value is not valid; build one with newConfig.
type config struct {
	capacity       int
	segmentCount   int
	minSplit       int
	waitTimeout    time.Duration
	largeThreshold int
}

func newConfig(opts ...Option) config {
	c := config{
		capacity:       DefaultCapacity,
		segmentCount:   DefaultSegmentCount,
		minSplit:       DefaultMinSplit,
		waitTimeout:    DefaultWaitTimeout,
		largeThreshold: DefaultLargeThreshold,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// smallSegmentSize returns the byte size of each of the segmentCount-1
// small segments: smallShare of capacity, split evenly among them.
func (c config) smallSegmentSize() int {
	return int(float64(c.capacity) * smallShare / float64(c.segmentCount-1))
}

// largeSegmentSize returns the byte size of the single large segment:
// largeShare of capacity.
func (c config) largeSegmentSize() int {
	return int(float64(c.capacity) * largeShare)
}

// segmentSize returns the byte size segment id should have: the small
// size for every segment but the last, the large size for the last.
func (c config) segmentSize(id int) int {
	if id == c.segmentCount-1 {
		return c.largeSegmentSize()
	}
	return c.smallSegmentSize()
}

// Option configures an Allocator at construction time. The zero-option
// New() reproduces the specification's compile-time constants exactly;
// options exist so tests and cmd/segbench can shrink the backing region
// instead of mapping 100 MiB per run.
type Option func(*config)

// WithCapacity overrides the total backing-region size, in bytes.
func WithCapacity(n int) Option {
	return func(c *config) { c.capacity = n }
}

// WithSegmentCount overrides the number of segments. Must be at least 2
// (one small segment plus the large segment) or New panics.
func WithSegmentCount(n int) Option {
	return func(c *config) { c.segmentCount = n }
}

// WithMinSplit overrides the minimum payload size a split-off tail block
// must retain.
func WithMinSplit(n int) Option {
	return func(c *config) { c.minSplit = n }
}

// WithWaitTimeout overrides the per-segment blocking-wait deadline.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *config) { c.waitTimeout = d }
}

// WithLargeThreshold overrides the payload size above which a request's
// wait phase goes to the large segment only.
func WithLargeThreshold(n int) Option {
	return func(c *config) { c.largeThreshold = n }
}
