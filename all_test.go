// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package purgeable

import (
	"errors"
	"fmt"
	"hash/maphash"
	"math"
	"os"
	"path"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"
	"modernc.org/mathutil"
)

func caller(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(2)
	fmt.Fprintf(os.Stderr, "# caller: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	_, fn, fl, _ = runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# \tcallee: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func dbg(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# dbg %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func use(...interface{}) {}

func init() {
	use(caller, dbg)
}

// ============================================================================

func mustAvailable(t *testing.T) {
	t.Helper()
	if !IsAvailable() {
		t.Skip("purgeable memory is not available on this platform")
	}
}

// lockOrSkip performs the Unlocked→Locked transition, skipping the test if
// the kernel purged the region. Purging is a legal outcome at any moment
// while unlocked, just not the expected one for an isolated test process.
func lockOrSkip[T any](t *testing.T, u *Unlocked[T]) *Locked[T] {
	t.Helper()
	l, err := u.Lock()
	if err != nil {
		t.Skip("region was purged under memory pressure")
	}
	return l
}

func lockSliceOrSkip[T any](t *testing.T, u *UnlockedSlice[T]) *LockedSlice[T] {
	t.Helper()
	l, err := u.Lock()
	if err != nil {
		t.Skip("region was purged under memory pressure")
	}
	return l
}

func TestAvailability(t *testing.T) {
	t.Logf("available %v, page size %v", IsAvailable(), PageSize())
}

func TestScalarRoundTrip(t *testing.T) {
	mustAvailable(t)
	l := New(int32(1))
	if g, e := *l.Value(), int32(1); g != e {
		t.Fatal(g, e)
	}

	l = lockOrSkip(t, l.Unlock())
	if g, e := *l.Value(), int32(1); g != e {
		t.Fatal(g, e)
	}

	*l.Value() = 2
	l = lockOrSkip(t, l.Unlock())
	if g, e := *l.Value(), int32(2); g != e {
		t.Fatal(g, e)
	}
	l.Free()
}

func TestSliceZeroFilled(t *testing.T) {
	mustAvailable(t)
	s := NewFilledSlice(byte(0), 1<<20)
	if g, e := s.Size(), uintptr(1<<20); g != e {
		t.Fatal(g, e)
	}

	s = lockSliceOrSkip(t, s.Unlock())
	for i, b := range s.Elems() {
		if b != 0 {
			t.Fatalf("%v: %#02x", i, b)
		}
	}
	s.Free()
}

func TestSliceSequence(t *testing.T) {
	mustAvailable(t)
	src := []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	s := NewSlice(src)
	if g, e := s.Len(), len(src); g != e {
		t.Fatal(g, e)
	}

	addr := s.Addr()
	size := s.Size()
	for i, v := range s.Elems() {
		if v != src[i] {
			t.Fatal(i, v, src[i])
		}
	}

	u := s.Unlock()
	if g := u.Size(); g != size {
		t.Fatal(g, size)
	}
	if g := u.Addr(); g != addr {
		t.Fatal(g, addr)
	}

	s = lockSliceOrSkip(t, u)
	if g := s.Addr(); g != addr {
		t.Fatal(g, addr)
	}
	if g := s.Size(); g != size {
		t.Fatal(g, size)
	}
	for i, v := range s.Elems() {
		if v != src[i] {
			t.Fatal(i, v, src[i])
		}
	}
	s.Free()
}

func TestRandomRoundTrip(t *testing.T) {
	mustAvailable(t)
	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		t.Fatal(err)
	}

	rng.Seed(42)
	pos := rng.Pos()
	s := NewSliceInit(1<<20, func(dst []byte) {
		for i := range dst {
			dst[i] = byte(rng.Next())
		}
	})

	s = lockSliceOrSkip(t, s.Unlock())
	rng.Seek(pos)
	for i, g := range s.Elems() {
		if e := byte(rng.Next()); g != e {
			t.Fatalf("%v: %#02x %#02x", i, g, e)
		}
	}
	s.Free()
}

func TestZeroSize(t *testing.T) {
	l := New(struct{}{})
	if g := l.Size(); g != 0 {
		t.Fatal(g)
	}

	u := l.Unlock()
	l, err := u.Lock()
	if err != nil {
		t.Fatal(err)
	}
	l.Free()

	s := NewSlice([]uint32{})
	if s.Size() != 0 || s.Len() != 0 {
		t.Fatal(s.Size(), s.Len())
	}
	su := s.Unlock()
	s, err = su.Lock()
	if err != nil {
		t.Fatal(err)
	}
	s.Free()
}

func TestAlignTooLarge(t *testing.T) {
	defer func() {
		msg, _ := recover().(string)
		if msg == "" {
			t.Fatal("expected a panic")
		}
		want := fmt.Sprintf("%d > %d", 2*osPageSize, osPageSize)
		if !strings.Contains(msg, want) {
			t.Fatalf("panic message %q does not identify the alignments %q", msg, want)
		}
	}()
	sysAlloc(uintptr(osPageSize), uintptr(2*osPageSize))
}

func TestHugeAllocFails(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("requires 64-bit int")
	}

	shift := uint(60)
	n := 1 << shift
	s, err := TryNewFilledSlice(byte(0), n)
	if err == nil {
		s.Free()
		t.Fatalf("allocation of %v bytes unexpectedly succeeded", n)
	}

	var ae *AllocError
	if !errors.As(err, &ae) {
		t.Fatalf("%T: %v", err, err)
	}
	if g, e := ae.Size, uintptr(n); g != e {
		t.Fatal(g, e)
	}
	if ae.Error() == "" || (&LockError{}).Error() == "" {
		t.Fatal("empty error string")
	}
}

func TestFreeLoop(t *testing.T) {
	mustAvailable(t)
	for i := 0; i < 64; i++ {
		s, err := TryNewFilledSlice(byte(i), 1<<20)
		if err != nil {
			t.Fatal(i, err)
		}
		if i%2 == 0 {
			s.Free()
			continue
		}
		s.Unlock().Free()
	}
}

func TestTransferAcrossGoroutines(t *testing.T) {
	mustAvailable(t)
	src := []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	u := NewSlice(src).Unlock()

	var g errgroup.Group
	g.Go(func() error {
		s, err := u.Lock()
		if err != nil {
			return nil // purged; nothing left to verify
		}
		defer s.Free()
		for i, v := range s.Elems() {
			if v != src[i] {
				return fmt.Errorf("%v: %v %v", i, v, src[i])
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestConsumedHandlePanics(t *testing.T) {
	mustAvailable(t)
	expectPanic := func(f func()) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()
		f()
	}

	l := New(int32(7))
	u := l.Unlock()
	expectPanic(func() { l.Value() })
	expectPanic(func() { l.Unlock() })

	l2, err := u.Lock()
	expectPanic(func() { u.Size() })
	if err != nil {
		t.Skip("region was purged under memory pressure")
	}
	l2.Free()
	expectPanic(func() { l2.Value() })
}

func TestCloneEqualCompareHash(t *testing.T) {
	mustAvailable(t)
	a := New(int32(5))
	b := a.Clone()
	c := New(int32(9))

	if a.Addr() == b.Addr() {
		t.Fatal("clone shares the region")
	}
	if !Equal(a, b) || Equal(a, c) {
		t.Fatal(*a.Value(), *b.Value(), *c.Value())
	}
	if Compare(a, b) != 0 || Compare(a, c) >= 0 || Compare(c, a) <= 0 {
		t.Fatal(*a.Value(), *c.Value())
	}

	seed := maphash.MakeSeed()
	if Hash(seed, a) != Hash(seed, b) {
		t.Fatal("equal values, different hashes")
	}

	if g, e := a.String(), "5"; g != e {
		t.Fatal(g, e)
	}

	a.Free()
	b.Free()
	c.Free()
}

func TestIsPurgedQuery(t *testing.T) {
	mustAvailable(t)
	u := New(uint64(0x1cedc0ffee)).Unlock()
	purged, ok := u.IsPurged()
	switch {
	case !ok:
		t.Log("kernel cannot report purge state on this platform")
	case purged:
		if l, err := u.Lock(); err == nil {
			l.Free()
			t.Fatal("query reported purged but lock succeeded")
		}
		return
	}
	if l, err := u.Lock(); err == nil {
		l.Free()
	}
}
