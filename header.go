package segalloc

import "unsafe"

// header is the in-band metadata prefixing every slice of a segment, free
// or allocated. size is the number of payload bytes following the header
// (header bytes excluded).
//
// prev/next link free-list peers and are meaningful only while free is
// true, exactly as the original C block_header documents. addrPrev/
// addrNext are a second, independent pair of links forming the permanent
// address-order chain within the segment — set when a header is created
// (by segment init or splitBlock) and updated when splitBlock carves a new
// neighbor or mergeBlocks retires one; they stay valid across
// allocate/free transitions. Coalescing at release time walks addrPrev/
// addrNext, not prev/next, which is this implementation's resolution of
// the free-list-links-during-allocation ambiguity flagged in spec.md §9.
type header struct {
	size      int
	free      bool
	segmentID int
	prev      *header
	next      *header
	addrPrev  *header
	addrNext  *header
}

// headerSize is the number of bytes the in-band header itself occupies.
var headerSize = int(unsafe.Sizeof(header{}))

// headerAt interprets the bytes at p as a *header.
func headerAt(p unsafe.Pointer) *header {
	return (*header)(p)
}

// payloadOf returns the pointer to h's payload, i.e. the first byte past
// the header.
func payloadOf(h *header) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + uintptr(headerSize))
}

// headerFromPayload recovers the owning header from a payload pointer
// previously returned by payloadOf / Allocate.
func headerFromPayload(p unsafe.Pointer) *header {
	return headerAt(unsafe.Pointer(uintptr(p) - uintptr(headerSize)))
}

// headerEnd returns the address one past h's payload, i.e. where an
// address-adjacent neighbor header would begin.
func headerEnd(h *header) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(h)) + uintptr(headerSize) + uintptr(h.size))
}

// adjacent reports whether right begins exactly where left's payload ends,
// i.e. whether the two headers are address-adjacent within a segment.
func adjacent(left, right *header) bool {
	return headerEnd(left) == unsafe.Pointer(right)
}
