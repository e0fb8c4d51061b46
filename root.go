// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"fmt"
	"sync"
)

// RootEntry wires one root cell's face adjacency. NeighborRoots
// must have exactly 2*shape.Dimensions() entries, each either the index of
// another root in the forest's root list or -1 for a domain boundary. No
// implicit topology is inferred beyond what is wired here.
type RootEntry struct {
	NeighborRoots []int
}

// SFCKind selects the space-filling curve a Forest's iterators traverse.
type SFCKind byte

const (
	// SFCMorton uses a fixed child-order permutation per oct; no
	// orientation state is tracked.
	SFCMorton SFCKind = iota
	// SFCHilbert tracks a per-oct orientation chosen from a finite set.
	SFCHilbert
)

// Forest is the set of roots plus all descendants reachable by splits,
// together with the configuration shared by every manager operating on it.
type Forest[P CellData] struct {
	Shape    Shape
	MaxLevel int
	SFC      SFCKind
	Roots    []*Cell[P]

	// mu serializes Split/Coarsen against each other across simulated
	// ranks. Every simulated rank in this implementation shares one
	// *Forest[P] rather than holding an independent copy (see DESIGN.md),
	// so two ranks' managers running as concurrent goroutines can
	// otherwise race on the same ancestor cell (e.g. both observing a
	// shared root as a leaf and both calling Split on it). Mutating calls
	// take mu for their duration; the blocking collective calls they
	// surround never do, so ranks still rendezvous concurrently.
	mu sync.Mutex
}

// withLock runs fn while holding f's structural-mutation lock.
func (f *Forest[P]) withLock(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

// NewForest builds a forest of len(entries) roots at level 0, wiring their
// face adjacency from entries and initializing each root's payload via
// initPayload.
func NewForest[P CellData](shape Shape, maxLevel int, sfc SFCKind, entries []RootEntry, initPayload func(rootIndex int) P) (*Forest[P], error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if maxLevel < 0 {
		return nil, fmt.Errorf("tamra: maxLevel must be >= 0, got %d", maxLevel)
	}
	numFaces := 2 * shape.Dimensions()

	roots := make([]*Cell[P], len(entries))
	for i := range entries {
		roots[i] = newRootCell[P](shape, i)
		if initPayload != nil {
			roots[i].payload = initPayload(i)
		}
	}
	for i, e := range entries {
		if len(e.NeighborRoots) != numFaces {
			return nil, fmt.Errorf("tamra: root %d: expected %d neighbor entries, got %d", i, numFaces, len(e.NeighborRoots))
		}
		roots[i].rootNeighbors = make([]*Cell[P], numFaces)
		for d, ref := range e.NeighborRoots {
			if ref < 0 {
				continue
			}
			if ref >= len(roots) {
				return nil, fmt.Errorf("tamra: root %d: neighbor index %d out of range", i, ref)
			}
			roots[i].rootNeighbors[d] = roots[ref]
		}
	}

	return &Forest[P]{Shape: shape, MaxLevel: maxLevel, SFC: sfc, Roots: roots}, nil
}

// Leaves walks the whole forest (every rank's view of it) and returns every
// leaf cell in SFC order. It is intended for small forests and tests; the
// distributed managers use the iterator instead of materializing this list.
func (f *Forest[P]) Leaves() []*Cell[P] {
	var out []*Cell[P]
	it := NewIterator(f)
	if !it.ToBegin(f.MaxLevel) {
		return nil
	}
	for {
		out = append(out, it.Current())
		if !it.Next(f.MaxLevel) {
			break
		}
	}
	return out
}
