// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"

	"github.com/tamra-mesh/tamra/internal/comm"
)

// Refine performs one global pass that splits every owned leaf marked
// ActionRefine; the 2:1 cascade inside Cell.Split handles
// neighbor propagation automatically. Refine only acts on this rank's
// cells -- a buildGhostLayer/conflict-resolution round is expected to
// follow in the typical driver, since a split may promote an OtherProc
// ghost parent into a subtree the remote owner hasn't split yet.
//
// It returns true iff at least one split happened on any rank, computed
// with a SUM allreduce over a 0/1 local flag.
func (f *Forest[P]) Refine(ctx context.Context, c comm.Comm, extrapolate ExtrapolateFunc[P]) (bool, error) {
	ctx, span := startSpan(ctx, "tamra.Refine")
	defer span.End()

	splitAny := false
	it := NewIterator(f)
	if it.ToOwnedBegin(f.MaxLevel) {
		for {
			cell := it.Current()
			if cell.IsLeaf() && cell.Indicator().IsToRefine() && cell.Level() < f.MaxLevel {
				var splitErr error
				f.withLock(func() {
					splitErr = cell.Split(f.MaxLevel, extrapolate)
				})
				if splitErr != nil {
					return false, WrapAppError(CodePrecondition, "refine: split failed", splitErr)
				}
				cell.SetToUnchange()
				splitAny = true
			}
			if !it.OwnedNext(f.MaxLevel) {
				break
			}
		}
	}

	local := 0.0
	if splitAny {
		local = 1.0
	}
	reduced, err := c.AllReduce(ctx, local, comm.OpSum)
	if err != nil {
		return false, err
	}
	return reduced > 0, nil
}
