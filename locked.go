// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package purgeable

import (
	"cmp"
	"fmt"
	"hash/maphash"
)

// Locked owns a purgeable region holding one T whose contents the kernel
// is required to preserve. It is the only handle form that exposes the
// value.
//
// A Locked handle is consumed by Unlock and Free; any use afterwards
// panics. Handles may move between goroutines, but a single handle must
// not be used from several goroutines at once without external
// synchronization.
type Locked[T any] struct {
	// Invariant: b's region is in the Locked state.
	b *box[T]
}

// New copies v into a freshly allocated locked region. It panics if the
// kernel rejects the allocation; TryNew surfaces the failure instead.
func New[T any](v T) *Locked[T] {
	l, err := TryNew(v)
	if err != nil {
		allocPanic(err)
	}
	return l
}

// TryNew is New returning an *AllocError instead of panicking.
func TryNew[T any](v T) (*Locked[T], error) {
	b, err := newBox[T](1)
	if err != nil {
		return nil, err
	}
	*b.elem() = v
	return &Locked[T]{b: b}, nil
}

func (l *Locked[T]) box() *box[T] {
	if l.b == nil {
		panic("purgeable: use of a consumed Locked handle")
	}
	return l.b
}

// Value returns the boxed value. The pointer stays valid until the handle
// is consumed; writes through it are kept by the region across later
// unlock/lock round trips.
func (l *Locked[T]) Value() *T { return l.box().elem() }

// Unlock marks the region volatile and consumes the handle. From this
// point on the kernel may discard the contents at any moment.
func (l *Locked[T]) Unlock() *Unlocked[T] {
	b := l.box()
	l.b = nil
	b.unlock()
	return &Unlocked[T]{b: b}
}

// Clone copies the value into a freshly allocated locked region. Like New
// it panics if the kernel rejects the allocation.
func (l *Locked[T]) Clone() *Locked[T] { return New(*l.Value()) }

// Size reports the region's byte length. It is fixed at allocation.
func (l *Locked[T]) Size() uintptr { return l.box().size() }

// Addr reports the region's base address, stable from allocation to Free
// across all state transitions.
func (l *Locked[T]) Addr() uintptr { return l.box().addr() }

// Free releases the kernel region and consumes the handle.
func (l *Locked[T]) Free() {
	b := l.box()
	l.b = nil
	b.free()
}

func (l *Locked[T]) String() string { return fmt.Sprint(*l.Value()) }

// Equal reports whether two locked boxes hold equal values.
func Equal[T comparable](a, b *Locked[T]) bool { return *a.Value() == *b.Value() }

// Compare orders two locked boxes by their values.
func Compare[T cmp.Ordered](a, b *Locked[T]) int { return cmp.Compare(*a.Value(), *b.Value()) }

// Hash hashes the boxed value. For a fixed seed it is consistent with
// Equal.
func Hash[T comparable](seed maphash.Seed, l *Locked[T]) uint64 {
	return maphash.Comparable(seed, *l.Value())
}

// LockedSlice owns a purgeable region holding a fixed number of T
// elements, in the Locked state. The element count is chosen at
// allocation and never changes.
type LockedSlice[T any] struct {
	// Invariant: b's region is in the Locked state.
	b *box[T]
}

// NewSlice copies src into a freshly allocated locked region. It panics
// if the kernel rejects the allocation.
func NewSlice[T any](src []T) *LockedSlice[T] {
	s, err := TryNewSlice(src)
	if err != nil {
		allocPanic(err)
	}
	return s
}

// TryNewSlice is NewSlice returning an *AllocError instead of panicking.
func TryNewSlice[T any](src []T) (*LockedSlice[T], error) {
	return TryNewSliceInit(len(src), func(dst []T) { copy(dst, src) })
}

// NewFilledSlice allocates a locked region of n elements, each set to v.
// It panics if the kernel rejects the allocation.
func NewFilledSlice[T any](v T, n int) *LockedSlice[T] {
	s, err := TryNewFilledSlice(v, n)
	if err != nil {
		allocPanic(err)
	}
	return s
}

// TryNewFilledSlice is NewFilledSlice returning an *AllocError instead of
// panicking.
func TryNewFilledSlice[T any](v T, n int) (*LockedSlice[T], error) {
	return TryNewSliceInit(n, func(dst []T) {
		for i := range dst {
			dst[i] = v
		}
	})
}

// NewSliceInit allocates a locked region of n elements and runs init on
// it before returning the handle. The kernel hands the region over
// zeroed; init must write every element it wants defined. It panics if
// the kernel rejects the allocation.
func NewSliceInit[T any](n int, init func([]T)) *LockedSlice[T] {
	s, err := TryNewSliceInit(n, init)
	if err != nil {
		allocPanic(err)
	}
	return s
}

// TryNewSliceInit is NewSliceInit returning an *AllocError instead of
// panicking.
func TryNewSliceInit[T any](n int, init func([]T)) (*LockedSlice[T], error) {
	b, err := newBox[T](n)
	if err != nil {
		return nil, err
	}
	if init != nil {
		init(b.slice())
	}
	return &LockedSlice[T]{b: b}, nil
}

func (l *LockedSlice[T]) box() *box[T] {
	if l.b == nil {
		panic("purgeable: use of a consumed LockedSlice handle")
	}
	return l.b
}

// Elems returns the element slice. It stays valid until the handle is
// consumed; writes to it are kept by the region across later unlock/lock
// round trips.
func (l *LockedSlice[T]) Elems() []T { return l.box().slice() }

// Len reports the element count.
func (l *LockedSlice[T]) Len() int { return l.box().n }

// Unlock marks the region volatile and consumes the handle.
func (l *LockedSlice[T]) Unlock() *UnlockedSlice[T] {
	b := l.box()
	l.b = nil
	b.unlock()
	return &UnlockedSlice[T]{b: b}
}

// Size reports the region's byte length.
func (l *LockedSlice[T]) Size() uintptr { return l.box().size() }

// Addr reports the region's base address.
func (l *LockedSlice[T]) Addr() uintptr { return l.box().addr() }

// Free releases the kernel region and consumes the handle.
func (l *LockedSlice[T]) Free() {
	b := l.box()
	l.b = nil
	b.free()
}
