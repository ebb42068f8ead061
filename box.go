// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package purgeable

import "unsafe"

// box adds a static element type to a sysBox. It does not track the
// purgeability state; every state-dependent method states its
// precondition and the safe handles are responsible for honoring it.
type box[T any] struct {
	sys sysBox
	n   int // element count; 1 for scalar boxes
}

// newBox allocates a region sized for n elements of T, in the Locked
// state. The contents are whatever the kernel mapped in.
func newBox[T any](n int) (*box[T], error) {
	if n < 0 {
		panic("purgeable: negative element count")
	}
	esize := unsafe.Sizeof(*new(T))
	ealign := unsafe.Alignof(*new(T))
	size := esize * uintptr(n)
	if esize != 0 && size/esize != uintptr(n) {
		return nil, &AllocError{Size: size, Align: ealign}
	}
	sys, err := sysAlloc(size, ealign)
	if err != nil {
		return nil, err
	}
	return &box[T]{sys: sys, n: n}, nil
}

// elem views the region as a single T.
// Dereferencing the result is defined only in the Locked state.
func (b *box[T]) elem() *T { return (*T)(unsafe.Pointer(b.sys.addr)) }

// slice views the region as its element slice.
// Reading or writing the elements is defined only in the Locked state.
func (b *box[T]) slice() []T { return unsafe.Slice((*T)(unsafe.Pointer(b.sys.addr)), b.n) }

// lock transitions Unlocked → Locked and reports whether the contents
// survived. Must only be called in the Unlocked state, and at most once:
// the region is non-volatile afterwards regardless of the report.
func (b *box[T]) lock() bool { return b.sys.lock() }

// unlock transitions Locked → Unlocked. Must only be called in the Locked
// state.
func (b *box[T]) unlock() { b.sys.unlock() }

func (b *box[T]) isPurged() (bool, bool) { return b.sys.isPurged() }

func (b *box[T]) size() uintptr { return b.sys.size }
func (b *box[T]) addr() uintptr { return b.sys.addr }
func (b *box[T]) free()         { b.sys.free() }
