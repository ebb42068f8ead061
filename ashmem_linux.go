// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package purgeable

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// ashmem is the Android shared-memory driver. Regions start pinned;
// unpinning declares them purgeable and the PIN ioctl reports whether the
// kernel reclaimed the pages in the meantime.

// Every region gets the same name. The driver does not require one, but
// newer Android releases are stricter about anonymous regions and a name
// costs nothing.
const ashmemName = "purgeable"

// ioctl numbers under magic 0x77, all _IOW.
const ashmemMagic = 0x77

func ashmemIOW(nr, size uintptr) uintptr {
	return 1<<30 | size<<16 | ashmemMagic<<8 | nr
}

var (
	ashmemSetName = ashmemIOW(1, 256)
	ashmemSetSize = ashmemIOW(3, unsafe.Sizeof(uintptr(0)))
	ashmemPinOp   = ashmemIOW(7, unsafe.Sizeof(ashmemPin{}))
	ashmemUnpinOp = ashmemIOW(8, unsafe.Sizeof(ashmemPin{}))
)

// PIN returns 0 (not purged) or 1 (was purged). offset/len of zero mean
// the whole region.
const ashmemNotPurged = 0

type ashmemPin struct {
	offset uint32
	len    uint32
}

// The NDK exports ASharedMemory_* from libandroid; when present they are
// preferred over poking /dev/ashmem directly. Resolved once per process,
// never unloaded.
var (
	ndkOnce sync.Once

	aSharedMemoryCreate  func(name string, size uintptr) int32
	aSharedMemoryGetSize func(fd int32) uintptr
	aSharedMemorySetProt func(fd int32, prot int32) int32
)

func ndkInit() {
	lib, err := purego.Dlopen("libandroid.so", purego.RTLD_LAZY|purego.RTLD_LOCAL)
	if err != nil {
		return
	}
	// RegisterLibFunc panics on a missing symbol; fall back to /dev/ashmem.
	defer func() { _ = recover() }()
	purego.RegisterLibFunc(&aSharedMemoryCreate, lib, "ASharedMemory_create")
	purego.RegisterLibFunc(&aSharedMemoryGetSize, lib, "ASharedMemory_getSize")
	purego.RegisterLibFunc(&aSharedMemorySetProt, lib, "ASharedMemory_setProt")
}

// ashmemCreate returns a region fd of the given byte size, or a negative
// value on failure.
func ashmemCreate(size uintptr) int {
	ndkOnce.Do(ndkInit)
	if aSharedMemoryCreate != nil {
		return int(aSharedMemoryCreate(ashmemName, size))
	}

	fd, err := unix.Open("/dev/ashmem", unix.O_RDWR, 0o600)
	if err != nil {
		return -1
	}

	var name [256]byte
	copy(name[:], ashmemName)
	if err := ashmemIoctl(fd, ashmemSetName, uintptr(unsafe.Pointer(&name[0]))); err != nil {
		unix.Close(fd)
		return -1
	}
	// SET_SIZE takes the size by value, not by pointer.
	if err := ashmemIoctl(fd, ashmemSetSize, size); err != nil {
		unix.Close(fd)
		return -1
	}
	return fd
}

func ashmemIoctl(fd int, req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, arg); errno != 0 {
		return errno
	}
	return nil
}

// ashmemPinRegion re-pins the whole region and reports whether the kernel
// kept the contents while it was unpinned.
func ashmemPinRegion(fd int) bool {
	pin := ashmemPin{}
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ashmemPinOp, uintptr(unsafe.Pointer(&pin)))
	return errno == 0 && r == ashmemNotPurged
}

func ashmemUnpinRegion(fd int) {
	pin := ashmemPin{}
	unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ashmemUnpinOp, uintptr(unsafe.Pointer(&pin)))
}
