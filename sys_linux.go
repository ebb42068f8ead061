// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package purgeable

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sysBox owns one ashmem region mapped shared read-write. The fd keeps
// the kernel object alive; the mapping is the only window into it.
type sysBox struct {
	addr uintptr
	size uintptr
	fd   int
	data []byte // the mmap view, retained for Munmap
}

func sysAlloc(size, align uintptr) (sysBox, error) {
	checkAlign(align)
	if size == 0 {
		return sysBox{addr: align, fd: -1}, nil
	}

	fd := ashmemCreate(size)
	if fd < 0 {
		return sysBox{}, &AllocError{Size: size, Align: align}
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return sysBox{}, &AllocError{Size: size, Align: align}
	}

	addr := uintptr(unsafe.Pointer(&data[0]))
	if addr&uintptr(osPageMask) != 0 {
		panic("internal error")
	}
	return sysBox{addr: addr, size: size, fd: fd, data: data}, nil
}

// lock pins the region. The PIN ioctl doubles as the purge report.
// Precondition: the region is unpinned.
func (b *sysBox) lock() bool {
	if b.fd < 0 {
		return true
	}
	return ashmemPinRegion(b.fd)
}

// unlock unpins the region, allowing the kernel to reclaim its pages.
// Precondition: the region is pinned.
func (b *sysBox) unlock() {
	if b.fd < 0 {
		return
	}
	ashmemUnpinRegion(b.fd)
}

// isPurged: ashmem has no side-effect-free purge query; PIN would re-pin.
func (b *sysBox) isPurged() (purged, ok bool) { return false, false }

func (b *sysBox) free() {
	if b.fd < 0 {
		return
	}
	unix.Munmap(b.data)
	unix.Close(b.fd)
	b.data = nil
}

// sysAvailable probes the driver with a minimal allocation. Plain Linux
// kernels usually ship without ashmem; Android always has it.
func sysAvailable() bool {
	b, err := sysAlloc(1, 1)
	if err != nil {
		return false
	}
	b.free()
	return true
}
