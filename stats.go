package segalloc

// Stats reports point-in-time counters for an Allocator, generalizing the
// teacher's own allocs/bytes/mmaps instrumentation fields into a public,
// read-only snapshot.
type Stats struct {
	// Allocs is the number of currently-outstanding (not yet released)
	// allocations.
	Allocs int

	// Timeouts is the cumulative number of Allocate calls that returned
	// nil because no segment admitted the request before its wait
	// deadline.
	Timeouts int

	// Initialized reports whether the backing region has been acquired
	// (true from the first Allocate call that acquires it, whether or not
	// that call returns a block, until the next Teardown).
	Initialized bool

	// CapacityBytes is the total size of the backing region this
	// Allocator was configured with.
	CapacityBytes int
}

// Stats returns a snapshot of the allocator's counters.
func (a *Allocator) Stats() Stats {
	a.statsMu.Lock()
	allocs, timeouts := a.allocs, a.timeouts
	a.statsMu.Unlock()

	a.initMu.Lock()
	initialized := a.initialized
	a.initMu.Unlock()

	return Stats{
		Allocs:        allocs,
		Timeouts:      timeouts,
		Initialized:   initialized,
		CapacityBytes: a.cfg.capacity,
	}
}
