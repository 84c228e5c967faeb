// Package segalloc implements a fixed-capacity, segmented memory allocator.
//
// The allocator carves a single contiguous backing region, acquired once
// from the host OS, into five independently-locked segments: four small
// segments sharing 20% of the capacity and served round-robin, plus one
// large segment holding the remaining 80%. Every request first tries the
// next small segment in round-robin order without blocking; if that fails,
// requests up to DefaultLargeThreshold wait on the small segments in turn
// and larger ones wait on the large segment. Each segment keeps its own
// best-fit free list, guarded by its own mutex and condition variable, so
// allocations served by different segments do not contend with each other.
//
// Changelog
//
// 2026-01-12 Re-expressed the original segmented-allocator design
// (four-thread C benchmark harness + pthread-based allocator) as a
// constructed Go value with functional options, in place of the process-
// wide static state the C source used.
package segalloc
