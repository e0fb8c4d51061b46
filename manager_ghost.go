// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	"context"
	"fmt"

	"github.com/tamra-mesh/tamra/internal/cellid"
	"github.com/tamra-mesh/tamra/internal/comm"
)

// BuildGhostLayer runs Ghost Phases A-D: it walks every owned
// leaf's neighbors in task.Dirs, records each newly-seen neighbor leaf in
// the task's snapshot, and flags a conflict for every snapshotted cell
// that is no longer a leaf -- a neighbor another rank split since the
// last successful sync. Conflicts are resolved with the Owned or Ghost
// strategy list, by ownership of the conflicting cell.
//
// This implementation keeps one shared in-memory forest across simulated
// ranks rather than giving each rank its own wire-serialized copy (see
// DESIGN.md): a ghost cell already exists in memory the instant its
// owner creates it, so Phase A/B's discovery and materialization collapse
// into a single neighbor walk, and "conflict" means drift against this
// task's own last-synced snapshot rather than a structural mismatch
// between two independently built copies. Snapshotted cells that were
// coarsened away since the last sync are simply forgotten; a coarsen
// attempt losing to the 2:1 rule was already declined at its source.
func (f *Forest[P]) BuildGhostLayer(ctx context.Context, c comm.Comm, task *GhostTask[P], extrapolate ExtrapolateFunc[P], interpolate InterpolateFunc[P]) error {
	_, span := startSpan(ctx, "tamra.BuildGhostLayer")
	defer span.End()

	task.Phase = PhaseDetect
	task.conflicts = task.conflicts[:0]

	f.withLock(func() {
		it := NewIterator(f)
		if it.ToOwnedBegin(f.MaxLevel) {
			for {
				it.Current().ApplyToNeighborLeafCells(func(_, neighbor *Cell[P], _ Direction) {
					if neighbor == nil {
						return
					}
					if _, ok := task.known[neighbor]; !ok {
						task.known[neighbor] = neighbor.Level()
					}
				}, task.Dirs)
				if !it.OwnedNext(f.MaxLevel) {
					break
				}
			}
		}

		for cell, level := range task.known {
			if !isAttached(cell) {
				delete(task.known, cell)
				continue
			}
			if cell.IsLeaf() {
				continue
			}
			task.conflicts = append(task.conflicts, ghostConflict[P]{
				cell:      cell,
				owned:     cell.Indicator().BelongsToThisProc(),
				wantLevel: level,
				gotLevel:  level + 1,
			})
		}
	})

	task.Phase = PhaseResolve
	var resolveErr error
	f.withLock(func() {
		for i := range task.conflicts {
			cf := &task.conflicts[i]
			var resolved bool
			var err error
			if cf.owned {
				resolved, err = resolveOwnedConflict(cf, task.OwnedStrategies, extrapolate)
			} else {
				resolved, err = resolveGhostConflict(cf, task.GhostStrategies, extrapolate, interpolate)
			}
			if err != nil {
				resolveErr = err
				return
			}
			cf.resolved = resolved
		}
	})
	if resolveErr != nil {
		return resolveErr
	}

	task.Phase = PhaseExtrapolate
	return nil
}

// isAttached reports whether cell is still reachable from its root: a
// coarsened-away cell keeps its back-references, but its parent oct is no
// longer the parent cell's child oct.
func isAttached[P CellData](cell *Cell[P]) bool {
	for c := cell; !c.IsRoot(); {
		oct := c.ParentOct()
		parent := oct.ParentCell()
		if parent.ChildOct() != oct {
			return false
		}
		c = parent
	}
	return true
}

func resolveOwnedConflict[P CellData](cf *ghostConflict[P], strategies []OwnedStrategy, extrapolate ExtrapolateFunc[P]) (bool, error) {
	for _, strat := range strategies {
		switch strat {
		case OwnedExtrapolate:
			// The cell is already split (that is what the conflict means);
			// push its payload down to the children so the re-sent values
			// are coherent.
			if !cf.cell.IsLeaf() && extrapolate != nil {
				extrapolate(cf.cell)
			}
			return true, nil
		case OwnedIgnore:
			return true, nil
		case OwnedThrow:
			return false, ErrThrow
		}
	}
	return false, nil
}

func resolveGhostConflict[P CellData](cf *ghostConflict[P], strategies []GhostStrategy, extrapolate ExtrapolateFunc[P], interpolate InterpolateFunc[P]) (bool, error) {
	for _, strat := range strategies {
		switch strat {
		case GhostExtrapolate:
			// Accept the ghost payload on the parent and extrapolate to the
			// locally-present children.
			if !cf.cell.IsLeaf() && extrapolate != nil {
				extrapolate(cf.cell)
			}
			return true, nil
		case GhostSplitInOwner:
			// Already split by its owner under the shared-forest model;
			// nothing further to materialize locally.
			return true, nil
		case GhostTryCoarsen:
			if cf.cell.IsLeaf() {
				return true, nil
			}
			cf.cell.SetActionRecursive(ActionCoarsen)
			if cf.cell.Coarsen(0, interpolate) {
				return true, nil
			}
			cf.cell.SetActionRecursive(ActionNone)
		case GhostIgnore:
			return true, nil
		case GhostThrow:
			return false, ErrThrow
		}
	}
	return false, nil
}

// ghostValue is one leaf's payload keyed by CellId, the unit
// ExchangeGhostValues moves through AllGatherV.
type ghostValue struct {
	id      cellid.ID
	payload []float64
}

func encodeGhostValue(id cellid.ID, payload []float64) []float64 {
	out := make([]float64, 0, 2+len(id.Orders)+1+len(payload))
	out = append(out, float64(id.Root), float64(len(id.Orders)))
	for _, o := range id.Orders {
		out = append(out, float64(o))
	}
	out = append(out, float64(len(payload)))
	out = append(out, payload...)
	return out
}

func decodeGhostValues(buf []float64) []ghostValue {
	var out []ghostValue
	i := 0
	for i < len(buf) {
		root := int(buf[i])
		i++
		n := int(buf[i])
		i++
		orders := make([]int, n)
		for k := 0; k < n; k++ {
			orders[k] = int(buf[i])
			i++
		}
		pn := int(buf[i])
		i++
		payload := append([]float64(nil), buf[i:i+pn]...)
		i += pn
		out = append(out, ghostValue{id: cellid.ID{Root: root, Orders: orders}, payload: payload})
	}
	return out
}

func cellIDKey(id cellid.ID) string {
	return fmt.Sprintf("%d:%v", id.Root, id.Orders)
}

// ExchangeGhostValues runs Ghost Phase E: each rank's owned-leaf payloads
// (every one when task.ResendOwned is set, otherwise only leaves under
// owned conflicts this round resolved) are shared via a single
// AllGatherV, then the leaves under every resolved ghost conflict
// (whichever strategy resolved it) have their payloads refreshed from the
// gathered set, matched by CellId. A per-cell owning rank isn't
// tracked (Indicator distinguishes only ThisProc/OtherProc, never a
// specific remote rank -- see DESIGN.md), so this is an all-gather rather
// than the point-to-point AllToAllV a rank-aware implementation could use.
func (f *Forest[P]) ExchangeGhostValues(ctx context.Context, c comm.Comm, task *GhostTask[P]) error {
	ctx, span := startSpan(ctx, "tamra.ExchangeGhostValues")
	defer span.End()

	var local []float64
	f.withLock(func() {
		if task.ResendOwned {
			it := NewIterator(f)
			if it.ToOwnedBegin(f.MaxLevel) {
				for {
					local = append(local, encodeGhostValue(it.CurrentID(), it.Current().Payload().ToVectorOfData())...)
					if !it.OwnedNext(f.MaxLevel) {
						break
					}
				}
			}
			return
		}
		// Minimal re-send: only the leaves under owned conflicts this round
		// actually resolved.
		for _, cf := range task.conflicts {
			if !cf.owned || !cf.resolved {
				continue
			}
			for _, leaf := range subtreeLeaves(cf.cell) {
				if leaf.Indicator().BelongsToThisProc() {
					local = append(local, encodeGhostValue(CellIDOf(f, leaf), leaf.Payload().ToVectorOfData())...)
				}
			}
		}
	})

	all, err := c.AllGatherV(ctx, local)
	if err != nil {
		return err
	}

	byID := make(map[string]ghostValue)
	for _, buf := range all {
		for _, v := range decodeGhostValues(buf) {
			byID[cellIDKey(v.id)] = v
		}
	}

	var refreshErr error
	f.withLock(func() {
		for _, cf := range task.conflicts {
			if cf.owned || !cf.resolved {
				continue
			}
			// A resolved ghost conflict left either a re-coarsened leaf or a
			// split parent with locally-present children; refresh whichever
			// leaves are actually there from the gathered set.
			for _, leaf := range subtreeLeaves(cf.cell) {
				v, ok := byID[cellIDKey(CellIDOf(f, leaf))]
				if !ok {
					continue
				}
				if uint(len(v.payload)) != leaf.Payload().DataSize() {
					refreshErr = NewAppError(CodeSerializationSize, "exchangeGhostValues: received payload size mismatch")
					return
				}
				leaf.Payload().FromVectorOfData(v.payload)
			}
		}
	})
	if refreshErr != nil {
		return refreshErr
	}

	task.Phase = PhaseExchange
	return nil
}

func subtreeLeaves[P CellData](c *Cell[P]) []*Cell[P] {
	if c.IsLeaf() {
		return []*Cell[P]{c}
	}
	var out []*Cell[P]
	for _, ch := range c.ChildCells() {
		out = append(out, subtreeLeaves(ch)...)
	}
	return out
}

// ContinueTask advances task from PhaseExtrapolate through the exchange
// step and closes the round. If unresolved conflicts remain, the task is
// left in PhaseDetect with IsFinished false; the driver installs
// different strategy lists and runs another BuildGhostLayer/ContinueTask
// cycle until IsFinished reports true.
func (f *Forest[P]) ContinueTask(ctx context.Context, c comm.Comm, task *GhostTask[P]) error {
	switch task.Phase {
	case PhaseExtrapolate:
		if err := f.ExchangeGhostValues(ctx, c, task); err != nil {
			return err
		}
		task.TerminateTask()
		return nil
	case PhaseDetect, PhaseFinish:
		return nil
	default:
		return NewAppError(CodePrecondition, "continueTask: called before BuildGhostLayer reached PhaseExtrapolate")
	}
}
