// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package purgeable

import (
	"golang.org/x/sys/windows"
)

// Windows has no purgeable VM objects; the closest contract is MEM_RESET.
// After a reset the kernel may discard the pages instead of paging them
// out, and MEM_RESET_UNDO withdraws the permission. The kernel never
// reports whether it made use of it, so lock can succeed with
// indeterminate contents. That limitation is part of this backend's
// documented contract.

// sysBox owns one committed private region.
type sysBox struct {
	addr uintptr
	size uintptr
}

func sysAlloc(size, align uintptr) (sysBox, error) {
	checkAlign(align)
	if size == 0 {
		return sysBox{addr: align}, nil
	}

	addr, err := windows.VirtualAlloc(0, size,
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil || addr == 0 {
		return sysBox{}, &AllocError{Size: size, Align: align}
	}
	return sysBox{addr: addr, size: size}, nil
}

// lock withdraws the discard permission. A non-zero return is taken as
// success even though MEM_RESET_UNDO is documented to fail once the
// kernel has reused the pages; the conservative reading keeps the region
// usable whenever the kernel will still talk about it.
// Precondition: the region is reset.
func (b *sysBox) lock() bool {
	if b.size == 0 {
		return true
	}
	addr, _ := windows.VirtualAlloc(b.addr, b.size, windows.MEM_RESET_UNDO, windows.PAGE_READWRITE)
	return addr != 0
}

// unlock marks the pages discardable. Precondition: the region is not
// already reset.
func (b *sysBox) unlock() {
	if b.size == 0 {
		return
	}
	windows.VirtualAlloc(b.addr, b.size, windows.MEM_RESET, windows.PAGE_READWRITE)
}

// isPurged: the kernel keeps no queryable purge state for reset pages.
func (b *sysBox) isPurged() (purged, ok bool) { return false, false }

func (b *sysBox) free() {
	if b.size == 0 {
		return
	}
	windows.VirtualFree(b.addr, 0, windows.MEM_RELEASE)
}

func sysAvailable() bool { return true }
