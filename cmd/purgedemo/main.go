// Copyright 2026 The Purgeable Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command purgedemo is an interactive probe for purgeable memory. It
// allocates purgeable and ordinary regions on request, keeps every
// purgeable region unlocked between commands, and reports how much of it
// the kernel has reclaimed so far. Useful for watching a platform's purge
// behavior under real memory pressure.
//
//	p 64MiB           allocate 64 MiB of purgeable memory
//	a 16MiB           allocate 16 MiB of ordinary memory
//	repeat 4 p 1MiB   run a command several times
//	q                 quit
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/vlad20012/purgeable"
)

// maybePurgedBox keeps a purgeable region unlocked between commands. The
// only way to learn whether the kernel purged it is to lock it; probe
// locks, records the verdict and unlocks again. Once purged the region is
// gone and inner stays nil.
type maybePurgedBox struct {
	inner *purgeable.UnlockedSlice[byte]
	size  uint64
}

func (b *maybePurgedBox) probe() (purged bool) {
	if b.inner == nil {
		return true
	}
	l, err := b.inner.Lock()
	if err != nil {
		b.inner = nil
		return true
	}
	b.inner = l.Unlock()
	return false
}

func main() {
	if !purgeable.IsAvailable() {
		fmt.Println("warning: purgeable memory is not available on this platform")
	}

	var pgable []*maybePurgedBox
	var boxes [][]byte

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "q", "quit", "e", "exit":
			return
		}

		if rest, ok := strings.CutPrefix(line, "repeat "); ok {
			num, cmd, found := strings.Cut(rest, " ")
			n, err := strconv.Atoi(num)
			if !found || err != nil {
				fmt.Println("usage: repeat <n> <command>")
				continue
			}
			for i := 0; i < n; i++ {
				perform(&pgable, &boxes, cmd)
			}
			continue
		}

		perform(&pgable, &boxes, line)
	}
}

func perform(pgable *[]*maybePurgedBox, boxes *[][]byte, line string) {
	cmd, arg, found := strings.Cut(line, " ")
	if !found {
		return
	}
	size, err := humanize.ParseBytes(arg)
	if err != nil {
		fmt.Printf("bad size %q: %v\n", arg, err)
		return
	}

	switch cmd {
	case "p", "purgeable":
		b, err := purgeable.TryNewFilledSlice(byte(0), int(size))
		if err != nil {
			fmt.Printf("allocation failed: %v\n", err)
			return
		}
		*pgable = append(*pgable, &maybePurgedBox{inner: b.Unlock(), size: size})
		fmt.Printf("Allocated %s of purgeable memory\n", humanize.IBytes(size))
		printStats(*pgable, *boxes)

	case "a", "alloc":
		b := make([]byte, size)
		for i := range b {
			b[i] = 1
		}
		*boxes = append(*boxes, b)
		fmt.Printf("Allocated %s of non-purgeable memory\n", humanize.IBytes(size))
		printStats(*pgable, *boxes)
	}
}

func printStats(pgable []*maybePurgedBox, boxes [][]byte) {
	var total, purged, plain uint64
	for _, b := range pgable {
		total += b.size
		if b.probe() {
			purged += b.size
		}
	}
	for _, b := range boxes {
		plain += uint64(len(b))
	}
	fmt.Printf("Total purgeable: %s (%s purged). Total non-purgeable: %s\n",
		humanize.IBytes(total), humanize.IBytes(purged), humanize.IBytes(plain))
}
