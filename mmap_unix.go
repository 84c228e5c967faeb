// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2017 The Memory Authors.
// Modifications (c) 2026: ported from raw syscall.Mmap to golang.org/x/sys/unix
// and narrowed to the single fixed-size backing-region mapping segalloc needs.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

package segalloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func mmapRegion(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}

	if uintptr(unsafe.Pointer(&b[0]))&uintptr(osPageMask) != 0 {
		panic("segalloc: region misaligned to host page size")
	}

	return b, nil
}

func munmapRegion(b []byte) error {
	return unix.Munmap(b)
}
