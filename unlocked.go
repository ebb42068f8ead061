// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package purgeable

// Unlocked is the handle of a scalar region whose contents the kernel may
// reclaim at any moment. It exposes no path to the contents; Lock is the
// only way back to them.
type Unlocked[T any] struct {
	// Invariant: b's region is in the Unlocked state.
	b *box[T]
}

func (u *Unlocked[T]) box() *box[T] {
	if u.b == nil {
		panic("purgeable: use of a consumed Unlocked handle")
	}
	return u.b
}

// Lock attempts to make the region non-volatile again and consumes the
// handle. On success the contents are intact and the returned handle is
// the region's Locked form. On *LockError the kernel purged the region
// while it was unlocked; the region has been released and the caller's
// recovery is to recompute and reallocate.
//
// On Windows the kernel does not report purging: Lock can succeed while
// the contents are nondeterministic. Applications that need detection there
// must checksum or tag their own data.
func (u *Unlocked[T]) Lock() (*Locked[T], error) {
	b := u.box()
	u.b = nil
	if !b.lock() {
		b.free()
		return nil, &LockError{}
	}
	return &Locked[T]{b: b}, nil
}

// IsPurged queries the kernel state without changing it. ok reports
// whether the kernel can answer at all; only the Darwin backend can.
func (u *Unlocked[T]) IsPurged() (purged, ok bool) { return u.box().isPurged() }

// Size reports the region's byte length.
func (u *Unlocked[T]) Size() uintptr { return u.box().size() }

// Addr reports the region's base address.
func (u *Unlocked[T]) Addr() uintptr { return u.box().addr() }

// Free releases the kernel region and consumes the handle.
func (u *Unlocked[T]) Free() {
	b := u.box()
	u.b = nil
	b.free()
}

// UnlockedSlice is the slice counterpart of Unlocked.
type UnlockedSlice[T any] struct {
	// Invariant: b's region is in the Unlocked state.
	b *box[T]
}

func (u *UnlockedSlice[T]) box() *box[T] {
	if u.b == nil {
		panic("purgeable: use of a consumed UnlockedSlice handle")
	}
	return u.b
}

// Lock attempts to make the region non-volatile again and consumes the
// handle. See Unlocked.Lock for the full contract, including the Windows
// caveat.
func (u *UnlockedSlice[T]) Lock() (*LockedSlice[T], error) {
	b := u.box()
	u.b = nil
	if !b.lock() {
		b.free()
		return nil, &LockError{}
	}
	return &LockedSlice[T]{b: b}, nil
}

// IsPurged queries the kernel state without changing it. ok reports
// whether the kernel can answer at all; only the Darwin backend can.
func (u *UnlockedSlice[T]) IsPurged() (purged, ok bool) { return u.box().isPurged() }

// Len reports the element count.
func (u *UnlockedSlice[T]) Len() int { return u.box().n }

// Size reports the region's byte length.
func (u *UnlockedSlice[T]) Size() uintptr { return u.box().size() }

// Addr reports the region's base address.
func (u *UnlockedSlice[T]) Addr() uintptr { return u.box().addr() }

// Free releases the kernel region and consumes the handle.
func (u *UnlockedSlice[T]) Free() {
	b := u.box()
	u.b = nil
	b.free()
}
