// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2017 The Memory Authors.
// Modifications (c) 2026: ported from raw syscall to golang.org/x/sys/windows
// and narrowed to the single fixed-size backing-region mapping segalloc needs.

package segalloc

import (
	"errors"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmap on Windows is a two-step process.
// First, we call CreateFileMapping to get a handle.
// Then, we call MapViewOfFile to get an actual pointer into memory.

// handleMap lets us recover the mapping handle from the memory address on
// unmap; handleMu guards it against concurrent mmapRegion/munmapRegion calls.
var (
	handleMu  sync.Mutex
	handleMap = map[uintptr]windows.Handle{}
)

func mmapRegion(size int) ([]byte, error) {
	maxSizeHigh := uint32(int64(size) >> 32)
	maxSizeLow := uint32(int64(size) & 0xFFFFFFFF)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, maxSizeHigh, maxSizeLow, nil)
	if h == 0 {
		return nil, os.NewSyscallError("CreateFileMapping", err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if addr == 0 {
		return nil, os.NewSyscallError("MapViewOfFile", err)
	}

	if addr&uintptr(osPageMask) != 0 {
		panic("segalloc: region misaligned to host page size")
	}

	handleMu.Lock()
	handleMap[addr] = h
	handleMu.Unlock()

	var b []byte
	sh := (*sliceHeader)(unsafe.Pointer(&b))
	sh.Data = unsafe.Pointer(addr)
	sh.Len = size
	sh.Cap = size
	return b, nil
}

func munmapRegion(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	addr := uintptr(unsafe.Pointer(&b[0]))
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return err
	}

	handleMu.Lock()
	handle, ok := handleMap[addr]
	if ok {
		delete(handleMap, addr)
	}
	handleMu.Unlock()
	if !ok {
		return errors.New("segalloc: unknown base address")
	}

	return os.NewSyscallError("CloseHandle", windows.CloseHandle(handle))
}

// sliceHeader mirrors reflect.SliceHeader's layout for the one place we
// need to construct a []byte from a raw address and length.
type sliceHeader struct {
	Data unsafe.Pointer
	Len  int
	Cap  int
}
