// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"
	"fmt"

	"github.com/tamra-mesh/tamra/internal/cellid"
	"github.com/tamra-mesh/tamra/internal/comm"
)

// MeshAtMinLevel (serial) recursively splits every cell below minLevel
// until the whole forest is uniformly at minLevel.
func (f *Forest[P]) MeshAtMinLevel(minLevel int, extrapolate ExtrapolateFunc[P]) error {
	for _, root := range f.Roots {
		if err := splitToMinLevel(root, minLevel, f.MaxLevel, extrapolate); err != nil {
			return fmt.Errorf("tamra: meshAtMinLevel: %w", err)
		}
	}
	return nil
}

func splitToMinLevel[P CellData](c *Cell[P], minLevel, maxLevel int, extrapolate ExtrapolateFunc[P]) error {
	if c.Level() >= minLevel {
		return nil
	}
	if c.IsLeaf() {
		if err := c.Split(maxLevel, extrapolate); err != nil {
			return err
		}
	}
	for _, ch := range c.ChildCells() {
		if err := splitToMinLevel(ch, minLevel, maxLevel, extrapolate); err != nil {
			return err
		}
	}
	return nil
}

// orderDigits converts a 0-based leaf index at a uniform level into its
// per-level order path (base-numChildren digits, most significant first)
// -- the arithmetic behind the equal-partition fences: since SFC
// order is lexicographic over the order path at every level, the digit
// expansion of a leaf's rank is exactly its order path.
func orderDigits(leafIndex, level, numChildren int) []int {
	digits := make([]int, level)
	for d := level - 1; d >= 0; d-- {
		digits[d] = leafIndex % numChildren
		leafIndex /= numChildren
	}
	return digits
}

func equalPartitionFence(root, leafIndex, level, numChildren int) cellid.ID {
	return cellid.ID{Root: root, Orders: orderDigits(leafIndex, level, numChildren)}
}

// EqualPartitions returns nProcs+1 fence ids for root rootIdx at the
// given uniform level: fence p is the first leaf rank p would own under
// an even split, and the final fence is the next root's id, which sorts
// after every cell in this root. Consecutive fences bound leaf counts
// differing by at most one, so the fences double as load-balancing
// targets before any payload load exists.
func EqualPartitions(shape Shape, rootIdx, level, nProcs int) []cellid.ID {
	numChildren := shape.NumChildren()
	nLeaves := 1
	for i := 0; i < level; i++ {
		nLeaves *= numChildren
	}
	fences := make([]cellid.ID, nProcs+1)
	for p := 0; p < nProcs; p++ {
		fences[p] = equalPartitionFence(rootIdx, (p*nLeaves)/nProcs, level, numChildren)
	}
	fences[nProcs] = cellid.ID{Root: rootIdx + 1}
	return fences
}

// MeshAtMinLevelPartitioned is the distributed form of MeshAtMinLevel: each
// rank computes its equal share of the nLeaves = numChildren^minLevel
// leaves of every root and materializes only those leaves, via
// it.ToCellId(create=true), rather than building the full uniform tree on
// every process. A final back-propagation pass marks interior ancestors
// ThisProc iff they have a ThisProc descendant.
func (f *Forest[P]) MeshAtMinLevelPartitioned(ctx context.Context, c comm.Comm, minLevel int, extrapolate ExtrapolateFunc[P]) error {
	_, span := startSpan(ctx, "tamra.MeshAtMinLevelPartitioned")
	defer span.End()

	rank, size := c.Rank(), c.Size()
	numChildren := f.Shape.NumChildren()
	nLeaves := 1
	for i := 0; i < minLevel; i++ {
		nLeaves *= numChildren
	}

	it := NewIterator(f)
	for rootIdx := range f.Roots {
		lo := (rank * nLeaves) / size
		hi := ((rank + 1) * nLeaves) / size
		for leafIndex := lo; leafIndex < hi; leafIndex++ {
			id := equalPartitionFence(rootIdx, leafIndex, minLevel, numChildren)
			ok := false
			f.withLock(func() {
				ok = it.ToCellId(id, true, extrapolate)
			})
			if !ok {
				return NewAppError(CodePrecondition, fmt.Sprintf("meshAtMinLevel: failed to materialize cell %+v", id))
			}
			it.Current().SetToThisProc()
		}
	}

	f.withLock(func() { BackPropagateOwnership(f) })
	return nil
}

// BackPropagateOwnership marks every interior cell ThisProc iff at least
// one descendant leaf is ThisProc, OtherProc otherwise. Interior-cell
// indicators are advisory only; they are recomputed here rather than
// trusted directly (called at the end of MeshAtMinLevelPartitioned and
// LoadBalance).
func BackPropagateOwnership[P CellData](f *Forest[P]) {
	for _, root := range f.Roots {
		backPropagateOwnership(root)
	}
}

func backPropagateOwnership[P CellData](c *Cell[P]) bool {
	if c.IsLeaf() {
		return c.Indicator().BelongsToThisProc()
	}
	anyOwned := false
	for _, ch := range c.ChildCells() {
		if backPropagateOwnership(ch) {
			anyOwned = true
		}
	}
	if anyOwned {
		c.SetToThisProc()
	} else {
		c.SetToOtherProc()
	}
	return anyOwned
}
