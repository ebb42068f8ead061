// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin

package purgeable

import (
	"github.com/ebitengine/purego"
)

// Purgeable objects are a first-class mach VM concept: vm_allocate creates
// one directly and vm_purgable_control drives its volatility. The calls
// are reached through purego so the package stays cgo-free.

const (
	// vm_allocate flags.
	vmFlagsAnywhere = 0x0001
	vmFlagsPurgable = 0x0002

	// vm_purgable_control operations.
	vmPurgableSetState = 0
	vmPurgableGetState = 1

	// Purgeability states. EMPTY doubles as a bit in SET_STATE replies:
	// set iff the kernel purged the object while it was volatile.
	vmPurgableNonvolatile = 0
	vmPurgableVolatile    = 1
	vmPurgableEmpty       = 2

	// Volatile ordering group 0, the default. Group 0 objects are purged
	// before higher groups.
	vmVolatileGroupDefault = 0

	kernSuccess = 0
)

var (
	machTaskSelf      func() uint32
	vmAllocate        func(task uint32, address *uintptr, size uintptr, flags int32) int32
	vmDeallocate      func(task uint32, address uintptr, size uintptr) int32
	vmPurgableControl func(task uint32, address uintptr, control int32, state *int32) int32
)

func init() {
	lib, err := purego.Dlopen("/usr/lib/system/libsystem_kernel.dylib",
		purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return
	}
	// RegisterLibFunc panics on a missing symbol. An incomplete libsystem
	// leaves the backend unavailable instead of taking the process down.
	defer func() { _ = recover() }()
	purego.RegisterLibFunc(&machTaskSelf, lib, "mach_task_self")
	purego.RegisterLibFunc(&vmAllocate, lib, "vm_allocate")
	purego.RegisterLibFunc(&vmDeallocate, lib, "vm_deallocate")
	purego.RegisterLibFunc(&vmPurgableControl, lib, "vm_purgable_control")
}

func sysAvailable() bool { return vmPurgableControl != nil }

// sysBox owns one purgeable mach VM region.
type sysBox struct {
	addr uintptr
	size uintptr
}

func sysAlloc(size, align uintptr) (sysBox, error) {
	checkAlign(align)
	if size == 0 {
		return sysBox{addr: align}, nil
	}
	if !sysAvailable() {
		return sysBox{}, &AllocError{Size: size, Align: align}
	}

	var addr uintptr
	ret := vmAllocate(machTaskSelf(), &addr, size, vmFlagsPurgable|vmFlagsAnywhere)
	if ret != kernSuccess || addr == 0 {
		return sysBox{}, &AllocError{Size: size, Align: align}
	}
	return sysBox{addr: addr, size: size}, nil
}

// lock makes the region non-volatile and reports whether the contents
// survived. Precondition: the region is volatile.
func (b *sysBox) lock() bool {
	if b.size == 0 {
		return true
	}
	state := int32(vmPurgableNonvolatile)
	if ret := vmPurgableControl(machTaskSelf(), b.addr, vmPurgableSetState, &state); ret != kernSuccess {
		return false
	}
	return state&vmPurgableEmpty == 0
}

// unlock makes the region volatile in the default ordering group.
// Precondition: the region is non-volatile.
func (b *sysBox) unlock() {
	if b.size == 0 {
		return
	}
	state := int32(vmPurgableVolatile | vmVolatileGroupDefault)
	vmPurgableControl(machTaskSelf(), b.addr, vmPurgableSetState, &state)
}

// isPurged queries the object state without changing it.
func (b *sysBox) isPurged() (purged, ok bool) {
	if b.size == 0 {
		return false, true
	}
	var state int32
	if ret := vmPurgableControl(machTaskSelf(), b.addr, vmPurgableGetState, &state); ret != kernSuccess {
		return true, true
	}
	return state&vmPurgableEmpty != 0, true
}

func (b *sysBox) free() {
	if b.size == 0 {
		return
	}
	vmDeallocate(machTaskSelf(), b.addr, b.size)
}
