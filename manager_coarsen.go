// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"

	"github.com/tamra-mesh/tamra/internal/comm"
)

// Coarsen performs one pass that collapses every eligible parent whose
// children are all leaves marked ActionCoarsen and whose neighbors still
// satisfy 2:1 afterward. Each root is descended recursively,
// attempting the deepest candidates first. Cell.Coarsen clears the
// collapsed parent's own mark, so a multi-level chain coarsens at most one
// level per call, and a further call coarsens the next level only where
// the new leaf and its siblings are marked ActionCoarsen again.
//
// It returns true iff anything changed on any rank.
func (f *Forest[P]) Coarsen(ctx context.Context, c comm.Comm, minLevel int, interpolate InterpolateFunc[P]) (bool, error) {
	ctx, span := startSpan(ctx, "tamra.Coarsen")
	defer span.End()

	changedAny := false
	for _, root := range f.Roots {
		if coarsenSubtree(f, root, minLevel, interpolate) {
			changedAny = true
		}
	}

	local := 0.0
	if changedAny {
		local = 1.0
	}
	reduced, err := c.AllReduce(ctx, local, comm.OpSum)
	if err != nil {
		return false, err
	}
	return reduced > 0, nil
}

// coarsenSubtree visits children before attempting c itself (post-order),
// so the deepest eligible parents are collapsed first within a single
// call.
func coarsenSubtree[P CellData](f *Forest[P], c *Cell[P], minLevel int, interpolate InterpolateFunc[P]) bool {
	if c.IsLeaf() {
		return false
	}
	changed := false
	for _, ch := range c.ChildCells() {
		if coarsenSubtree(f, ch, minLevel, interpolate) {
			changed = true
		}
	}
	coarsened := false
	f.withLock(func() {
		coarsened = c.Coarsen(minLevel, interpolate)
	})
	if coarsened {
		changed = true
	}
	return changed
}
