// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package purgeable provides typed, owning handles over purgeable memory:
// anonymous virtual-memory regions the kernel is free to reclaim while
// their owner has declared them volatile.
//
// A region is always in one of three states. Locked: the kernel preserves
// the contents and dereferencing is defined. Unlocked: the kernel may
// discard the contents at any moment. Purged: the kernel did discard them;
// Lock reports this with *LockError, consumes the handle and releases the
// region, so no handle to a purged region remains.
//
//	(alloc) ──▶ Locked ──Unlock──▶ Unlocked ──Lock ok──▶ Locked
//	                                       └──Lock err─▶ Purged (freed)
//
// The state is carried by the handle type. Locked[T] and LockedSlice[T]
// expose the contents; Unlocked[T] and UnlockedSlice[T] expose no path to
// them, which is what makes reading purged memory unrepresentable. A state
// transition consumes its handle and returns the handle of the next state;
// using a consumed handle panics.
//
// Element types must be plain data: no pointers, maps, chans, funcs,
// slices, strings or interfaces anywhere inside them. The regions are
// invisible to the garbage collector and values are moved in and out by
// bytewise copy.
//
// Backends: Darwin mach VM purgeable objects, Android/Linux ashmem,
// Windows MEM_RESET/MEM_RESET_UNDO. Everything else gets a stub whose
// IsAvailable reports false. On Windows the kernel does not report
// purging, so Lock can succeed while the contents are nondeterministic;
// see Unlocked.Lock.
package purgeable

import (
	"fmt"
	"os"
)

var (
	osPageMask = osPageSize - 1
	osPageSize = os.Getpagesize()
)

// PageSize reports the kernel's virtual-memory page granularity. It is
// also the largest alignment the allocators in this package support.
func PageSize() int { return osPageSize }

// IsAvailable reports whether purgeable allocations can be expected to
// succeed on this platform and build.
func IsAvailable() bool { return sysAvailable() }

// AllocError is the failure of the Try* constructors: the kernel refused
// to provide a region. It carries the rejected layout.
type AllocError struct {
	Size  uintptr
	Align uintptr
}

func (e *AllocError) Error() string { return "purgeable memory allocation failed" }

// LockError is the failure of Lock: the kernel purged the region while it
// was unlocked. The region has been released by the time Lock returns.
type LockError struct{}

func (e *LockError) Error() string { return "the purgeable box has already been purged" }

// Alignments above the page size are a programming error, not an
// allocation failure.
func checkAlign(align uintptr) {
	if align == 0 || align&(align-1) != 0 {
		panic("internal error")
	}
	if align > uintptr(osPageSize) {
		panic(fmt.Sprintf("purgeable: requested alignment is larger than page size: %d > %d", align, osPageSize))
	}
}

func allocPanic(err error) {
	if e, ok := err.(*AllocError); ok {
		panic(fmt.Sprintf("purgeable: memory allocation of %d bytes failed", e.Size))
	}
	panic(err)
}
